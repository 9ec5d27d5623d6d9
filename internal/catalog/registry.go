package catalog

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"

	"github.com/d-bee/dbee/internal/dbeeerr"
	"github.com/d-bee/dbee/internal/tablestore"
	"github.com/d-bee/dbee/internal/types"
)

// registryColumns is the fixed schema of the root schema.hive file, the
// database registry: (database_id, database_key).
var registryColumns = types.Schema{
	{Type: types.Text, Name: "database_id"},
	{Type: types.Text, Name: "database_key"},
}

// Registry is the global database registry: an in-memory map mirroring a
// table, all writers holding mu so concurrent readers see a coherent
// snapshot.
type Registry struct {
	mu    sync.Mutex
	table *tablestore.Table
	keys  map[string]string
}

// OpenRegistry opens (creating if necessary) <base>/schema.hive and loads
// its rows into the in-memory map.
func OpenRegistry(base string) (*Registry, error) {
	t, err := tablestore.Open(filepath.Join(base, "schema.hive"), registryColumns)
	if err != nil {
		return nil, err
	}
	r := &Registry{table: t, keys: map[string]string{}}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) reload() error {
	cur, row, found, err := r.table.SelectRow(nil, nil)
	if err != nil {
		return err
	}
	for found {
		id, err := r.table.GetCol(row, "database_id")
		if err != nil {
			return err
		}
		key, err := r.table.GetCol(row, "database_key")
		if err != nil {
			return err
		}
		r.keys[id.Text] = key.Text
		row, found, err = r.table.Next(cur)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) Close() error { return r.table.Close() }

// AddDatabase registers name with key, failing with already-exists if
// name is already registered.
func (r *Registry) AddDatabase(name, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.keys[name]; ok {
		return dbeeerr.Newf(dbeeerr.AlreadyExists, "database %q already exists", name)
	}
	if err := r.table.InsertRow(types.Row{types.TextValue(name), types.TextValue(key)}); err != nil {
		return err
	}
	r.keys[name] = key
	return nil
}

// RemoveDatabase deregisters name, failing with not-found if it is
// unknown.
func (r *Registry) RemoveDatabase(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.keys[name]; !ok {
		return dbeeerr.Newf(dbeeerr.NotFound, "database %q does not exist", name)
	}
	if _, err := r.table.DeleteRow(&tablestore.Predicate{Column: "database_id", Op: tablestore.Equal, Value: types.TextValue(name)}); err != nil {
		return err
	}
	delete(r.keys, name)
	return nil
}

// GetDatabaseNames returns every currently registered database name.
func (r *Registry) GetDatabaseNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.keys))
	for name := range r.keys {
		names = append(names, name)
	}
	return names
}

// GetDatabaseKey returns the key for name, if registered.
func (r *Registry) GetDatabaseKey(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keys[name]
	return key, ok
}

// CheckKey reports whether key is the registered key for name.
func (r *Registry) CheckKey(name, key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	want, ok := r.keys[name]
	return ok && want == key
}

// LoadOrCreateAdminKey reads ADMIN_KEY from <base>/.env, generating and
// persisting a fresh key on first boot.
func LoadOrCreateAdminKey(base string) (string, error) {
	envPath := filepath.Join(base, ".env")
	if env, err := godotenv.Read(envPath); err == nil {
		if key, ok := env["ADMIN_KEY"]; ok && key != "" {
			return key, nil
		}
	} else if !os.IsNotExist(err) {
		return "", dbeeerr.Wrap(dbeeerr.Storage, "read .env", err)
	}

	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", dbeeerr.Wrap(dbeeerr.Storage, "create base directory", err)
	}
	if err := godotenv.Write(map[string]string{"ADMIN_KEY": key}, envPath); err != nil {
		return "", dbeeerr.Wrap(dbeeerr.Storage, "write .env", err)
	}
	return key, nil
}
