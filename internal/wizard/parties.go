package wizard

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tbourn/go-claims-backend/internal/domain"
)

// Party is a staged involved party. Its ID is chosen by the client (or
// generated when empty) and is only meaningful within the session: saved
// rows get fresh ids on every save.
type Party struct {
	ID               string           `json:"id"`
	Role             domain.PartyRole `json:"role"`
	Name             string           `json:"name"`
	Phone            string           `json:"phone"`
	Email            string           `json:"email"`
	Address          string           `json:"address"`
	InsuranceCompany string           `json:"insurance_company,omitempty"`
}

func (p Party) normalized() (Party, error) {
	p.ID = strings.TrimSpace(p.ID)
	p.Role = domain.PartyRole(strings.TrimSpace(string(p.Role)))
	if !p.Role.Valid() {
		return Party{}, fmt.Errorf("%w: %q", ErrInvalidRole, p.Role)
	}
	p.Name = strings.TrimSpace(p.Name)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Email = strings.TrimSpace(p.Email)
	p.Address = strings.TrimSpace(p.Address)
	p.InsuranceCompany = strings.TrimSpace(p.InsuranceCompany)
	if p.Role != domain.RoleThirdParty {
		p.InsuranceCompany = ""
	}
	return p, nil
}

// row maps the party to a claim_parties row. The insurance company is kept
// only for third parties.
func (p Party) row(claimID string) domain.ClaimParty {
	r := domain.ClaimParty{
		ClaimID: claimID,
		Role:    p.Role,
		Name:    p.Name,
		Phone:   p.Phone,
		Email:   p.Email,
		Address: p.Address,
	}
	if p.Role == domain.RoleThirdParty {
		r.InsuranceCompany = optional(p.InsuranceCompany)
	}
	return r
}

func (s *Session) partyIndex(id string) int {
	for i := range s.parties {
		if s.parties[i].ID == id {
			return i
		}
	}
	return -1
}

// AddParty stages p and returns it as stored.
func (s *Session) AddParty(p Party) (Party, error) {
	p, err := p.normalized()
	if err != nil {
		return Party{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	} else if s.partyIndex(p.ID) >= 0 {
		return Party{}, fmt.Errorf("%w: %s", ErrDuplicateParty, p.ID)
	}
	s.parties = append(s.parties, p)
	s.changed()
	return p, nil
}

// UpdateParty replaces the staged party with the given id.
func (s *Session) UpdateParty(id string, p Party) (Party, error) {
	i := s.partyIndex(id)
	if i < 0 {
		return Party{}, fmt.Errorf("%w: %s", ErrPartyNotFound, id)
	}
	p.ID = id
	p, err := p.normalized()
	if err != nil {
		return Party{}, err
	}
	s.parties[i] = p
	s.changed()
	return p, nil
}

// RemoveParty drops the staged party with the given id.
func (s *Session) RemoveParty(id string) error {
	i := s.partyIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrPartyNotFound, id)
	}
	s.parties = append(s.parties[:i], s.parties[i+1:]...)
	s.changed()
	return nil
}
