package directory

import (
	"context"
	"strings"

	"appointment-scheduler/internal/apperr"
	"appointment-scheduler/internal/model"
)

type UserLister interface {
	ListUsers(ctx context.Context) ([]model.User, error)
	UserGetter
}

// Selection is what choosing a user hands to the scheduling form.
type Selection struct {
	ID          string
	DisplayName string
}

// Directory lists the users a caller can schedule with.
type Directory struct {
	users UserLister
}

func NewDirectory(users UserLister) *Directory {
	return &Directory{users: users}
}

// List returns every user except callerID whose display name contains term,
// case-insensitively. An empty term matches everyone.
func (d *Directory) List(ctx context.Context, callerID, term string) ([]model.Principal, error) {
	users, err := d.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(term)
	out := make([]model.Principal, 0, len(users))
	for i := range users {
		u := &users[i]
		if u.ID == callerID {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(u.Name), needle) {
			continue
		}
		out = append(out, u.Principal())
	}
	return out, nil
}

// Select resolves id into a Selection. The caller can never select itself.
func (d *Directory) Select(ctx context.Context, callerID, id string) (Selection, error) {
	if id == "" {
		return Selection{}, apperr.Validation("a user must be selected")
	}
	if id == callerID {
		return Selection{}, apperr.Validation("cannot schedule an appointment with yourself")
	}
	u, err := d.users.UserByID(ctx, id)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return Selection{}, apperr.Validation("selected user does not exist")
		}
		return Selection{}, err
	}
	return Selection{ID: u.ID, DisplayName: u.Name}, nil
}
