package credstore

import (
	"encoding/base64"
	"encoding/json"
	"errors"

	pkgerrors "github.com/pkg/errors"

	"github.com/donmezahmet/ring-unlock/ring"
)

// ErrStorage marks read/write failures of the credential slot. Fatal to the
// calling operation but never to the process.
var ErrStorage = errors.New("credential storage failure")

// Store is durable, single-slot persistence for one vendor session. Load
// returns (nil, nil) when no session has ever been saved. Save overwrites the
// slot atomically; a session is never partially persisted.
type Store interface {
	Load() (*ring.Session, error)
	Save(session *ring.Session) error
}

// DecodeSeed decodes a base64(JSON) session, the format used to prime an
// empty store from an environment variable on hosts without durable disks.
func DecodeSeed(seed string) (*ring.Session, error) {
	raw, err := base64.StdEncoding.DecodeString(seed)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[DecodeSeed] base64")
	}
	var session ring.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, pkgerrors.Wrap(err, "[DecodeSeed] unmarshal")
	}
	if session.AccessToken == "" || session.RefreshToken == "" {
		return nil, pkgerrors.New("[DecodeSeed] incomplete session")
	}
	return &session, nil
}

// EncodeSeed is the inverse of DecodeSeed, for displaying the current session
// in a form the operator can copy into an environment variable.
func EncodeSeed(session *ring.Session) (string, error) {
	raw, err := json.Marshal(session)
	if err != nil {
		return "", pkgerrors.Wrap(err, "[EncodeSeed] marshal")
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
