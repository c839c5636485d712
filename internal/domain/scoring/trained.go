package scoring

import (
	"fmt"

	"github.com/okian/meeple/internal/domain/latent"
	"github.com/okian/meeple/internal/domain/model"
	"github.com/okian/meeple/internal/domain/tier"
)

// trained scores with a latent model borrowed from the request.
type trained struct {
	tier model.Tier
	gate *tier.Gate
}

// RichModel is tier A: a model trained on the full corpus.
type RichModel struct{ trained }

// ReducedModel is tier B: a model trained on the local snapshot.
type ReducedModel struct{ trained }

// NewRichModel creates the tier A strategy.
func NewRichModel(gate *tier.Gate) *RichModel {
	return &RichModel{trained{tier: model.TierRich, gate: gate}}
}

// NewReducedModel creates the tier B strategy.
func NewReducedModel(gate *tier.Gate) *ReducedModel {
	return &ReducedModel{trained{tier: model.TierReduced, gate: gate}}
}

func (s trained) Tier() model.Tier { return s.tier }
func (trained) sealed()            {}

func (s trained) borrow(req *Request) (*latent.Model, error) {
	m := req.Models[s.tier]
	if m == nil {
		return nil, fmt.Errorf("%w: no %s artifact", model.ErrModelUnavailable, s.tier)
	}
	if need := s.gate.MinGames(s.tier); m.CorpusSize() < need {
		return nil, fmt.Errorf("%w: artifact corpus %d below %d", model.ErrModelUnavailable, m.CorpusSize(), need)
	}
	return m, nil
}

func (s trained) CanHandle(req *Request) error {
	m, err := s.borrow(req)
	if err != nil {
		return err
	}
	if !m.Knows(req.Candidate.ID) {
		return fmt.Errorf("%w: cold start for game %d", model.ErrModelUnavailable, req.Candidate.ID)
	}
	for _, g := range req.Profile.Games {
		if g.GameID != req.Candidate.ID && m.Knows(g.GameID) {
			return nil
		}
	}
	return fmt.Errorf("%w: no profile games in vocabulary", model.ErrModelUnavailable)
}

func (s trained) Execute(req *Request) (Outcome, error) {
	m, err := s.borrow(req)
	if err != nil {
		return Outcome{}, err
	}
	p, err := m.Predict(req.Profile, req.Candidate.ID)
	if err != nil {
		return Outcome{}, err
	}
	parts := make([]model.Contribution, 0, len(p.Contributions)+1)
	parts = append(parts, model.Contribution{Feature: "latent_affinity", Value: p.Raw})
	for _, c := range p.Contributions {
		label := fmt.Sprintf("#%d", c.GameID)
		if g, ok := req.Owned[c.GameID]; ok {
			label = gameLabel(g)
		}
		parts = append(parts, model.Contribution{Feature: "because_of:" + label, Value: c.Value})
	}
	return Outcome{Score: latent.Normalize(p.Raw), Raw: p.Raw, parts: parts}, nil
}

func (trained) Explain(_ *Request, o Outcome) []model.Contribution {
	return truncate(o.parts)
}
