package trace

import (
	"bytes"
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"fairtrace/internal/model"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
)

// Stage groups the actors of one operation at one tier.
type Stage struct {
	Tier          int           `json:"tier"`
	Title         string        `json:"title"`
	OperationID   *uuid.UUID    `json:"operation_id,omitempty"`
	ActorName     string        `json:"actor_name"`
	Image         string        `json:"image"`
	StageProducts []ProductRef  `json:"stage_products"`
	Actors        []ActorRecord `json:"actors"`
	Date          *time.Time    `json:"date"`
}

// AssignStage returns the stage title of an actor: the theme's override for
// its primary operation, the operation name, or the node type when the node
// has no operation in this supply chain.
func AssignStage(a *Actor, theme *model.Theme) string {
	if a.Operation == nil {
		return capitalize(string(a.Node.Type))
	}
	if title, ok := theme.StageTitle(a.Operation.ID); ok {
		return title
	}
	return a.Operation.Name
}

type stageKey struct {
	tier  int
	title string
}

// BuildStages groups actors by (tier, title) and orders stages from the
// farthest tier to the nearest. Tier 0 (the holder of the traced batch) is
// left out unless nobody else is involved, which is the case for a
// farm-origin batch.
func BuildStages(actors map[uuid.UUID]*Actor, theme *model.Theme) []Stage {
	upstream := false
	for _, a := range actors {
		if a.Tier > 0 {
			upstream = true
			break
		}
	}

	groups := make(map[stageKey][]*Actor)
	for _, a := range actors {
		if upstream && a.Tier == 0 {
			continue
		}
		k := stageKey{tier: a.Tier, title: AssignStage(a, theme)}
		groups[k] = append(groups[k], a)
	}

	keys := make([]stageKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(x, y stageKey) int {
		return cmp.Or(cmp.Compare(y.tier, x.tier), strings.Compare(x.title, y.title))
	})

	stages := make([]Stage, 0, len(keys))
	for _, k := range keys {
		stages = append(stages, buildStage(k, groups[k], actors))
	}
	return stages
}

func buildStage(k stageKey, members []*Actor, actors map[uuid.UUID]*Actor) Stage {
	st := Stage{Tier: k.tier, Title: k.title, StageProducts: []ProductRef{}}

	var last time.Time
	var products []ProductRef
	for _, a := range members {
		rec := a.Record(actors)
		st.Actors = append(st.Actors, rec)
		if d := a.LastDate(); d.After(last) {
			last = d
		}
		for _, p := range rec.Products {
			if hasRole(p, RoleOutgoing, RoleProcessed) {
				products = append(products, ProductRef{ID: p.ID, Name: p.Name})
			}
		}
		if st.OperationID == nil && a.Operation != nil {
			id := a.Operation.ID
			st.OperationID = &id
		}
	}

	// actors with an image first, then by name and id
	slices.SortFunc(st.Actors, func(x, y ActorRecord) int {
		xi, yi := x.Image != "", y.Image != ""
		if xi != yi {
			if xi {
				return -1
			}
			return 1
		}
		return cmp.Or(strings.Compare(x.Name, y.Name), bytes.Compare(x.ID[:], y.ID[:]))
	})

	if len(st.Actors) == 1 {
		st.ActorName = st.Actors[0].Name
	} else {
		st.ActorName = fmt.Sprintf("%d %s", len(st.Actors), inflection.Plural(k.title))
	}
	st.Image = st.Actors[0].Image

	seen := make(map[uuid.UUID]struct{})
	for _, p := range products {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		st.StageProducts = append(st.StageProducts, p)
	}
	sortProducts(st.StageProducts)

	if !last.IsZero() {
		st.Date = &last
	}
	return st
}
