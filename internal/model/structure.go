package model

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

type EntryType string

const (
	EntryExtension EntryType = "extension"
	EntryQueue     EntryType = "queue"
	EntryTrunk     EntryType = "trunk"
	EntryParking   EntryType = "parking"
	EntryGroup     EntryType = "group"
)

var ErrInvalidStruct = errors.New("invalid structure entry")

type StructEntry struct {
	Key       string    `yaml:"-"`
	Type      EntryType `yaml:"type"`
	Tech      string    `yaml:"tech"`
	Extension string    `yaml:"extension"`
	Queue     string    `yaml:"queue"`
	Label     string    `yaml:"label"`
}

// Number - номер, по которому запись сверяется с АТС
func (e StructEntry) Number() string {
	if e.Type == EntryQueue {
		return e.Queue
	}
	return e.Extension
}

func (e StructEntry) validate() error {
	switch e.Type {
	case EntryExtension, EntryTrunk:
		if e.Tech != TechSIP && e.Tech != TechIAX {
			return fmt.Errorf("%w %s: tech %q", ErrInvalidStruct, e.Key, e.Tech)
		}
		fallthrough
	case EntryParking, EntryGroup:
		if e.Extension == "" {
			return fmt.Errorf("%w %s: no extension", ErrInvalidStruct, e.Key)
		}
	case EntryQueue:
		if e.Queue == "" {
			return fmt.Errorf("%w %s: no queue", ErrInvalidStruct, e.Key)
		}
	default:
		return fmt.Errorf("%w %s: type %q", ErrInvalidStruct, e.Key, e.Type)
	}
	return nil
}

// Struct - ожидаемая топология АТС, сверяется с живыми данными при старте
type Struct struct {
	entries map[string]StructEntry
}

func NewStruct(entries ...StructEntry) (*Struct, error) {
	s := &Struct{entries: make(map[string]StructEntry, len(entries))}
	for _, e := range entries {
		if err := e.validate(); err != nil {
			return nil, err
		}
		s.entries[e.Key] = e
	}
	return s, nil
}

func LoadStruct(r io.Reader) (*Struct, error) {
	raw := map[string]StructEntry{}
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStruct, err)
	}
	entries := make([]StructEntry, 0, len(raw))
	for k, e := range raw {
		e.Key = k
		entries = append(entries, e)
	}
	return NewStruct(entries...)
}

func LoadStructFile(path string) (*Struct, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadStruct(f)
}

func (s *Struct) Get(key string) (StructEntry, bool) {
	e, ok := s.entries[key]
	return e, ok
}

func (s *Struct) Remove(key string) {
	delete(s.entries, key)
}

func (s *Struct) Len() int {
	return len(s.entries)
}

// Entries отбирает записи по типу и, если задана, технологии
func (s *Struct) Entries(t EntryType, tech string) []StructEntry {
	var out []StructEntry
	for _, e := range s.entries {
		if e.Type == t && (tech == "" || e.Tech == tech) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Clone нужен каждой сессии: сверка с АТС удаляет записи
func (s *Struct) Clone() *Struct {
	c := &Struct{entries: make(map[string]StructEntry, len(s.entries))}
	for k, e := range s.entries {
		c.entries[k] = e
	}
	return c
}
