package pathing

import (
	"os"
	"path/filepath"
)

// EnsureDir creates dir (and parents) if it does not exist yet.
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

func GetJournalDbPath() string {
	return filepath.Join(GetDataDir(), "rig-journal.db")
}

func GetDataDir() string {
	return "/var/lib/vitals_rig"
}

func GetConfigDir() string {
	return "/etc/vitals_rig"
}

func GetRigConfigPath() string {
	return filepath.Join(GetConfigDir(), "rigd.toml")
}
