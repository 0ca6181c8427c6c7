package store

import (
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/levelcode/teamfabric/internal/errors"
)

// Inbox persistence. Each member's inbox is a single JSON array file keyed
// by member name. Senders append under the inbox lock; readers never take
// it. The store treats message payloads as opaque JSON; the mailbox layer
// owns the protocol schema.

// SendMessage appends a message to the recipient's inbox under the inbox
// lock, creating the inbox file on first delivery. The payload must be one
// complete JSON value.
func (s *Store) SendMessage(teamName, to string, msg json.RawMessage) error {
	if len(msg) == 0 || !json.Valid(msg) {
		return errors.NewValidationError("Message payload must be valid JSON.")
	}
	path, err := s.InboxPath(teamName, to)
	if err != nil {
		return err
	}
	if !s.TeamExists(teamName) {
		return errors.NewTeamNotFoundError(teamName)
	}

	err = s.withLock(path, func() error {
		messages, err := readInboxFile(path)
		if err != nil {
			return err
		}
		messages = append(messages, msg)
		return writeJSONFile(path, messages)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("message delivered", "team", teamName, "to", to)
	return nil
}

// ReadInbox returns the recipient's queued messages, oldest first. Reading
// does not consume: two consecutive reads return the same sequence. A
// missing inbox reads as empty. A parse failure means the reader raced a
// writer that bypassed the rename discipline; the error is transient and
// callers retry.
func (s *Store) ReadInbox(teamName, agent string) ([]json.RawMessage, error) {
	path, err := s.InboxPath(teamName, agent)
	if err != nil {
		return nil, err
	}
	return readInboxFile(path)
}

// ClearInbox resets the recipient's inbox to an empty array. Agents call
// this after processing what ReadInbox returned.
func (s *Store) ClearInbox(teamName, agent string) error {
	path, err := s.InboxPath(teamName, agent)
	if err != nil {
		return err
	}
	if !s.TeamExists(teamName) {
		return errors.NewTeamNotFoundError(teamName)
	}
	return s.withLock(path, func() error {
		return writeJSONFile(path, []json.RawMessage{})
	})
}

// InboxNames returns the member names that currently have inbox files,
// sorted. Maintenance compares these against the member list to find
// orphans.
func (s *Store) InboxNames(teamName string) ([]string, error) {
	dir, err := s.InboxDir(teamName)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStoreError("list inboxes", err).WithTeam(teamName).WithPath(dir)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// readInboxFile parses an inbox file into raw messages. A missing inbox is
// an empty one.
func readInboxFile(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStoreError("read inbox", err).WithPath(path)
	}
	var messages []json.RawMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, errors.NewCorruptedError("inbox", path, err)
	}
	return messages, nil
}
