package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// ImportMessage asks the worker to load an uploaded export into storage. The
// import row already exists in the database as pending; the message only
// carries what is needed to find and decode the upload.
type ImportMessage struct {
	ImportID  string    `json:"import_id"`
	Dataset   string    `json:"dataset"`
	Year      int       `json:"year,omitempty"`
	Venue     string    `json:"venue,omitempty"`
	Path      string    `json:"path"`
	Encoding  string    `json:"encoding,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewImportMessage creates a message stamped with the current time.
func NewImportMessage(importID, dataset string, year int, venue, path, encoding string) *ImportMessage {
	return &ImportMessage{
		ImportID:  importID,
		Dataset:   dataset,
		Year:      year,
		Venue:     venue,
		Path:      path,
		Encoding:  encoding,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ImportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ImportMessageFromJSON decodes a message and checks its required fields.
func ImportMessageFromJSON(data []byte) (*ImportMessage, error) {
	var msg ImportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ImportID == "" || msg.Path == "" {
		return nil, errors.New("import message requires import_id and path")
	}
	return &msg, nil
}
