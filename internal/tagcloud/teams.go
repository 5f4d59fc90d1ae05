package tagcloud

import (
	"fmt"
	"sort"
	"sync"

	"github.com/robfisher/mailshare/internal/config"
	"github.com/robfisher/mailshare/internal/store"
)

// AllTeams is the pseudo team id whose cloud covers every mail.
const AllTeams int64 = 0

// Team is a configured mailing list resolved to its contact. ContactID is
// -1 when no mail to the address has been imported yet.
type Team struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	ContactID int64  `json:"contact_id"`
}

// ContactFinder looks contacts up by address, case-insensitively.
type ContactFinder interface {
	GetContactByAddress(address string) (*store.Contact, error)
}

// ResolveTeams resolves configured teams to contacts, sorted by name.
func ResolveTeams(teams []config.TeamConfig, contacts ContactFinder) ([]Team, error) {
	out := make([]Team, 0, len(teams))
	for _, t := range teams {
		team := Team{Name: t.Name, Address: t.Address, ContactID: -1}
		c, err := contacts.GetContactByAddress(t.Address)
		if err != nil {
			return nil, fmt.Errorf("resolve team %s: %w", t.Name, err)
		}
		if c != nil {
			team.ContactID = c.ID
		}
		out = append(out, team)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Roster holds the resolved teams. Teams resolve to -1 until mail to their
// address is imported, so the roster is refreshed after imports.
type Roster struct {
	teams    []config.TeamConfig
	contacts ContactFinder

	mu       sync.RWMutex
	resolved []Team
}

// NewRoster returns a roster for the configured teams. Call Refresh before
// reading Teams.
func NewRoster(teams []config.TeamConfig, contacts ContactFinder) *Roster {
	return &Roster{teams: teams, contacts: contacts}
}

// Refresh resolves the teams again and returns the result. On error the
// previous resolution is kept.
func (r *Roster) Refresh() ([]Team, error) {
	teams, err := ResolveTeams(r.teams, r.contacts)
	if err != nil {
		return r.Teams(), err
	}
	r.mu.Lock()
	r.resolved = teams
	r.mu.Unlock()
	return teams, nil
}

// Teams returns the last resolution.
func (r *Roster) Teams() []Team {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Team(nil), r.resolved...)
}
