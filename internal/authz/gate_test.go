package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/starford/linkpage/internal/models"
)

func TestGateCheck(t *testing.T) {
	alice := models.Actor{ID: "alice"}
	own := &models.Link{ID: "l1", OwnerID: "alice"}
	foreign := &models.Link{ID: "l2", OwnerID: "bob"}

	tests := []struct {
		name   string
		actor  models.Actor
		action Action
		target *models.Link
		want   Decision
	}{
		{"view any", alice, ActionViewAny, nil, Allow},
		{"create", alice, ActionCreate, nil, Allow},
		{"view own", alice, ActionView, own, Allow},
		{"update own", alice, ActionUpdate, own, Allow},
		{"delete own", alice, ActionDelete, own, Allow},
		{"view foreign", alice, ActionView, foreign, Deny},
		{"update foreign", alice, ActionUpdate, foreign, Deny},
		{"delete foreign", alice, ActionDelete, foreign, Deny},
		{"update without target", alice, ActionUpdate, nil, Deny},
		{"unauthenticated view any", models.Actor{}, ActionViewAny, nil, Deny},
		{"unauthenticated create", models.Actor{}, ActionCreate, nil, Deny},
		{"unknown action", alice, Action("publish"), own, Deny},
	}

	var g Gate
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Check(tt.actor, tt.action, tt.target))
		})
	}
}
