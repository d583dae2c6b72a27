package layout

import (
	"fmt"

	"xdao.co/latch/keys"
	"xdao.co/latch/metablock"
)

// SignFile loads the layout at layoutPath, validates it, signs it with each
// private key, and writes the result to outPath (layoutPath when outPath is
// empty). A prior signature from the same key is replaced, not appended.
func SignFile(layoutPath, outPath string, privKeys ...*keys.Key) error {
	if len(privKeys) == 0 {
		return fmt.Errorf("no signing keys given")
	}
	m, err := metablock.Load(layoutPath)
	if err != nil {
		return err
	}
	if _, err := FromMetablock(m); err != nil {
		return fmt.Errorf("%s: %w", layoutPath, err)
	}
	for _, k := range privKeys {
		if err := m.Sign(k); err != nil {
			return err
		}
	}
	if outPath == "" {
		outPath = layoutPath
	}
	return metablock.Dump(m, outPath)
}
