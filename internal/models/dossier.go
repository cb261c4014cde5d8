package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/myrjola/dossier/internal/errors"
	"github.com/myrjola/dossier/internal/mergepatch"
)

// Data is the free-form payload of a dossier.
//
// Values are JSON trees: map[string]any, []any, string, json.Number, float64, bool or nil.
// Numbers decoded by this package are json.Number so that integers survive round-trips exactly.
type Data map[string]any

// Dossier is a persisted record about a single player.
type Dossier struct {
	ID         string    `db:"id"          json:"id"`
	PlayerName string    `db:"player_name" json:"player_name"`
	Data       Data      `db:"data"        json:"data"`
	CreatedAt  time.Time `db:"created_at"  json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"  json:"updated_at"`
}

// NewDossier creates a dossier stamped with now for both timestamps.
//
// A nil data is replaced with an empty mapping since data is never null at rest.
func NewDossier(id, playerName string, data Data, now time.Time) *Dossier {
	if data == nil {
		data = Data{}
	}
	now = now.UTC()
	return &Dossier{
		ID:         id,
		PlayerName: playerName,
		Data:       data,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a detached deep copy.
func (d *Dossier) Clone() *Dossier {
	if d == nil {
		return nil
	}
	clone := *d
	clone.Data = d.Data.Clone()
	return &clone
}

// Clone returns a deep copy of the payload.
func (d Data) Clone() Data {
	if d == nil {
		return nil
	}
	cloned, _ := mergepatch.Clone(map[string]any(d)).(map[string]any)
	return cloned
}

// Value implements [driver.Valuer] by storing the payload as a JSON object.
func (d Data) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]any(d))
	if err != nil {
		return nil, errors.Wrap(err, "marshal dossier data")
	}
	return string(b), nil
}

// Scan implements [sql.Scanner] by decoding a JSON object.
func (d *Data) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = Data{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return errors.New("scan dossier data: unsupported type", slog.String("type", fmt.Sprintf("%T", src)))
	}
	decoded, err := DecodeData(raw)
	if err != nil {
		return errors.Wrap(err, "scan dossier data")
	}
	*d = decoded
	return nil
}

// DecodeData decodes a JSON object into Data, keeping numbers as json.Number.
//
// A JSON null decodes into an empty mapping. Any other non-object value is an error.
func DecodeData(raw []byte) (Data, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var data Data
	if err := dec.Decode(&data); err != nil {
		return nil, errors.Wrap(err, "decode json object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after json object")
	}
	if data == nil {
		data = Data{}
	}
	return data, nil
}
