package layout

import (
	"fmt"

	"xdao.co/latch/keys"
	"xdao.co/latch/metablock"
)

// InjectKey registers pub in the layout's key registry and appends its keyid
// to every step's authorized-signer list. Reinjecting the same key is a
// no-op, so the operation is safe to repeat.
func (l *Layout) InjectKey(pub *keys.Key) (string, error) {
	p, err := pub.Public()
	if err != nil {
		return "", err
	}
	if l.Keys == nil {
		l.Keys = make(map[string]*keys.Key)
	}
	l.Keys[p.KeyID] = p
	for _, s := range l.Steps {
		if !containsString(s.PubKeys, p.KeyID) {
			s.PubKeys = append(s.PubKeys, p.KeyID)
		}
	}
	return p.KeyID, nil
}

// InjectKeyFile loads the layout from path, injects each public key file,
// and writes the layout back in place. Existing signatures are dropped:
// the signed body changed, so they no longer bind.
func InjectKeyFile(layoutPath string, pubKeyPaths ...string) error {
	m, err := metablock.Load(layoutPath)
	if err != nil {
		return err
	}
	l, err := FromMetablock(m)
	if err != nil {
		return fmt.Errorf("%s: %w", layoutPath, err)
	}
	for _, kp := range pubKeyPaths {
		pub, err := keys.LoadPublic(kp)
		if err != nil {
			return err
		}
		if _, err := l.InjectKey(pub); err != nil {
			return fmt.Errorf("%s: %w", kp, err)
		}
	}
	if err := m.SetSigned(l); err != nil {
		return err
	}
	return metablock.Dump(m, layoutPath)
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
