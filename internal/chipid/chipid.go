package chipid

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Unknown is reported for chip ids outside the table.
const Unknown = "UNKNOWN"

var (
	mu    sync.RWMutex
	base  uint64 = 0x15
	names        = []string{"MXL370x", "MXL371x"}
)

// Load replaces the chip table from a JSON file:
//
//	{"base": 21, "names": ["MXL370x", "MXL371x"]}
func Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var cfg struct {
		Base  *uint64  `json:"base"`
		Names []string `json:"names"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return err
	}
	if len(cfg.Names) == 0 {
		return fmt.Errorf("chip table %s: no names", path)
	}

	mu.Lock()
	defer mu.Unlock()
	if cfg.Base != nil {
		base = *cfg.Base
	}
	names = cfg.Names
	return nil
}

// Name maps the raw chip id register to a chip family name.
func Name(id uint64) string {
	mu.RLock()
	defer mu.RUnlock()
	if id < base || id-base >= uint64(len(names)) {
		return Unknown
	}
	return names[id-base]
}
