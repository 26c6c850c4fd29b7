// Package identity persists this machine's MachineId across restarts,
// following the teacher's config.Manager pattern (internal/config in the
// teacher repo): a small JSON file under the platform user-config
// directory, loaded once at startup and otherwise immutable.
package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"crosskvm/internal/types"
)

const fileName = "identity.json"

type onDisk struct {
	MachineId string `json:"machine_id"`
}

// Load reads the machine identity from dir, generating and persisting a
// new one if none exists yet (first run).
func Load(dir string) (types.MachineId, error) {
	path := filepath.Join(dir, fileName)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		id := types.NewMachineId()
		if err := save(dir, id); err != nil {
			return types.MachineId{}, fmt.Errorf("identity: persist new machine id: %w", err)
		}
		return id, nil
	}
	if err != nil {
		return types.MachineId{}, fmt.Errorf("identity: read %s: %w", path, err)
	}

	var record onDisk
	if err := json.Unmarshal(data, &record); err != nil {
		return types.MachineId{}, fmt.Errorf("identity: parse %s: %w", path, err)
	}
	id, err := types.MachineIdFromString(record.MachineId)
	if err != nil {
		return types.MachineId{}, fmt.Errorf("identity: invalid machine id in %s: %w", path, err)
	}
	return id, nil
}

func save(dir string, id types.MachineId) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(onDisk{MachineId: id.String()}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, fileName), data, 0o644)
}
