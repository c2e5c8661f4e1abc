//go:build darwin && cgo

package credstore

/*
#cgo LDFLAGS: -framework CoreFoundation -framework Security

#include <CoreFoundation/CoreFoundation.h>
#include <Security/Security.h>
*/
import "C"

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"unsafe"

	"github.com/rs/zerolog"
)

const keychainService = "haio-mountctl"

func defaultProtector(logger zerolog.Logger) protector {
	return keychainProtector{}
}

// keychainProtector stores the password verbatim in the macOS login
// Keychain under a generic-password item, keyed by keychainService. The
// accounts.json entry then holds only a base64 opaque reference token, not
// the secret itself, matching spec.md §6's "reversible, clearly labeled
// non-secret" wording for the on-disk artifact.
type keychainProtector struct{}

func (keychainProtector) scheme() Scheme { return SchemeKeychain }

func (keychainProtector) protect(plaintext string) (string, error) {
	ref := newKeychainRef()
	if err := keychainSet(ref, plaintext); err != nil {
		return "", err
	}
	return ref, nil
}

func (keychainProtector) unprotect(ciphertext string) (string, error) {
	return keychainGet(ciphertext)
}

// newKeychainRef mints a fresh opaque account name used as the Keychain
// item's account attribute. The stored "ciphertext" in accounts.json is
// this reference, not the password.
func newKeychainRef() string {
	var buf [16]byte
	_, _ = rand.Read(buf[:])
	return base64.RawURLEncoding.EncodeToString(buf[:])
}

func keychainSet(account, secret string) error {
	cService := C.CString(keychainService)
	defer C.free(unsafe.Pointer(cService))
	cAccount := C.CString(account)
	defer C.free(unsafe.Pointer(cAccount))
	cSecret := C.CString(secret)
	defer C.free(unsafe.Pointer(cSecret))

	status := C.SecKeychainAddGenericPassword(
		nil,
		C.UInt32(len(keychainService)), cService,
		C.UInt32(len(account)), cAccount,
		C.UInt32(len(secret)), unsafe.Pointer(cSecret),
		nil,
	)
	if status == C.errSecDuplicateItem {
		// Replace: delete then re-add, keeping semantics simple.
		if err := keychainDelete(account); err != nil {
			return err
		}
		status = C.SecKeychainAddGenericPassword(
			nil,
			C.UInt32(len(keychainService)), cService,
			C.UInt32(len(account)), cAccount,
			C.UInt32(len(secret)), unsafe.Pointer(cSecret),
			nil,
		)
	}
	if status != C.errSecSuccess {
		return errors.New("keychain: SecKeychainAddGenericPassword failed")
	}
	return nil
}

func keychainGet(account string) (string, error) {
	cService := C.CString(keychainService)
	defer C.free(unsafe.Pointer(cService))
	cAccount := C.CString(account)
	defer C.free(unsafe.Pointer(cAccount))

	var dataLen C.UInt32
	var data unsafe.Pointer

	status := C.SecKeychainFindGenericPassword(
		nil,
		C.UInt32(len(keychainService)), cService,
		C.UInt32(len(account)), cAccount,
		&dataLen, &data,
		nil,
	)
	if status != C.errSecSuccess {
		return "", errors.New("keychain: item not found")
	}
	defer C.SecKeychainItemFreeContent(nil, data)

	return C.GoStringN((*C.char)(data), C.int(dataLen)), nil
}

func keychainDelete(account string) error {
	cService := C.CString(keychainService)
	defer C.free(unsafe.Pointer(cService))
	cAccount := C.CString(account)
	defer C.free(unsafe.Pointer(cAccount))

	var itemRef C.SecKeychainItemRef
	status := C.SecKeychainFindGenericPassword(
		nil,
		C.UInt32(len(keychainService)), cService,
		C.UInt32(len(account)), cAccount,
		nil, nil,
		&itemRef,
	)
	if status != C.errSecSuccess {
		return nil
	}
	defer C.CFRelease(C.CFTypeRef(itemRef))
	C.SecKeychainItemDelete(itemRef)
	return nil
}
