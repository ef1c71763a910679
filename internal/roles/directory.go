package roles

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ErrNoHead is returned when the directory lists nobody who can start an approval.
var ErrNoHead = errors.New("roles: at least one head member required")

// File is the on-disk layout of the directory.
type File struct {
	Members       map[Role][]int64          `yaml:"members"`
	Nicknames     map[Role]map[int64]string `yaml:"nicknames"`
	PaymentRoutes map[string][]int64        `yaml:"payment_routes"`
	WhiteList     []int64                   `yaml:"white_list"`
}

// Directory answers "who is this party" and "who should hear about role R".
// It is built once at start-up and is safe for concurrent reads.
type Directory struct {
	members   map[Role][]int64
	index     map[Role]map[int64]struct{}
	nicknames map[Role]map[int64]string
	routes    map[string][]int64
	allowed   map[int64]struct{}
}

// LoadFile reads a YAML directory from path.
func LoadFile(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("roles: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a YAML directory.
func Load(r io.Reader) (*Directory, error) {
	var file File
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("roles: decode: %w", err)
	}
	return New(file)
}

// New validates file and builds the lookup tables.
func New(file File) (*Directory, error) {
	d := &Directory{
		members:   make(map[Role][]int64),
		index:     make(map[Role]map[int64]struct{}),
		nicknames: make(map[Role]map[int64]string),
		routes:    make(map[string][]int64),
		allowed:   make(map[int64]struct{}),
	}
	for role, ids := range file.Members {
		if !role.Valid() {
			return nil, fmt.Errorf("roles: unknown role %q in members", role)
		}
		seen := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			d.members[role] = append(d.members[role], id)
		}
		d.index[role] = seen
	}
	if len(d.members[Head]) == 0 {
		return nil, ErrNoHead
	}
	for role, names := range file.Nicknames {
		if !role.Valid() {
			return nil, fmt.Errorf("roles: unknown role %q in nicknames", role)
		}
		copied := make(map[int64]string, len(names))
		for id, name := range names {
			copied[id] = name
		}
		d.nicknames[role] = copied
	}
	for method, ids := range file.PaymentRoutes {
		d.routes[method] = append([]int64(nil), ids...)
	}
	for _, id := range file.WhiteList {
		d.allowed[id] = struct{}{}
	}
	return d, nil
}

// RoleOf returns the role a party acts under. Parties listed in several roles
// act as head, then finance, then payment, then initiator.
func (d *Directory) RoleOf(party int64) (Role, bool) {
	for _, role := range actingOrder {
		if d.Has(role, party) {
			return role, true
		}
	}
	return "", false
}

// Has reports membership of party in role.
func (d *Directory) Has(role Role, party int64) bool {
	_, ok := d.index[role][party]
	return ok
}

// NicknameOf returns the display name of party within role, falling back to the raw id.
func (d *Directory) NicknameOf(role Role, party int64) string {
	if name, ok := d.nicknames[role][party]; ok && name != "" {
		return name
	}
	return strconv.FormatInt(party, 10)
}

// ChatIDsOf returns every member of role.
func (d *Directory) ChatIDsOf(role Role) []int64 {
	return append([]int64(nil), d.members[role]...)
}

// ChatIDByNickname finds the party carrying nickname in any role.
func (d *Directory) ChatIDByNickname(nickname string) (int64, bool) {
	for _, role := range All {
		names := d.nicknames[role]
		ids := make([]int64, 0, len(names))
		for id := range names {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			if names[id] == nickname {
				return id, true
			}
		}
	}
	return 0, false
}

// PaymentChats returns the payers responsible for method. Without a dedicated
// route every payment member is returned.
func (d *Directory) PaymentChats(method string) []int64 {
	if ids, ok := d.routes[method]; ok && len(ids) > 0 {
		return append([]int64(nil), ids...)
	}
	return d.ChatIDsOf(Payment)
}

// Allowed reports whether party may talk to the bot. An empty white list admits
// every directory member.
func (d *Directory) Allowed(party int64) bool {
	if len(d.allowed) > 0 {
		_, ok := d.allowed[party]
		return ok
	}
	_, ok := d.RoleOf(party)
	return ok
}
