package mountagent

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// writeAgentConfigEntry performs the atomic parse-merge-write required by
// spec.md §4.3/§5: the config file is shared across the account, so a
// concurrent writer must never see a half-written file, and an unrelated
// entry already present must survive.
func writeAgentConfigEntry(path, configName string, e agentConfEntry) error {
	data, err := readAgentConfig(path)
	if err != nil {
		return err
	}
	data[configName] = e
	return writeAgentConfig(path, data)
}

func readAgentConfig(path string) (agentConfFile, error) {
	data := agentConfFile{}
	bs, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return data, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bs) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(bs, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func writeAgentConfig(path string, data agentConfFile) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	bs, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".mount_agent-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(bs); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
