package clients

import "errors"

var ErrClientNotFound = errors.New("client not found")

// Repo is the external client store the core reads registered clients from.
type Repo interface {
	Upsert(clientData *Client) error
	Delete(clientID string) error
	Get(clientID string) (*Client, error)
	List(offset, limit int) ([]*Client, error)
}
