// Package signal defines user action signals and the per-blueprint signal table
// used to label blueprint transitions.
package signal

import (
	"fmt"
	"strings"
)

// Reserved labels.
const (
	// LabelBatch marks a self-triggered "give me a batch" transition.
	LabelBatch = "BATCH"

	// LabelDefault marks the catch-all transition of a vertex.
	LabelDefault = "DEFAULT"
)

// Signal is a named user action with an advisory relevance weight. The weight
// is consumed by the personalization backend, never by the state stepper.
type Signal struct {
	Label  string  `json:"label" yaml:"label"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// String returns the signal label.
func (s Signal) String() string {
	return s.Label
}

// IsReserved reports whether the signal carries one of the reserved labels.
func (s Signal) IsReserved() bool {
	return s.Label == LabelBatch || s.Label == LabelDefault
}

var (
	Default            = Signal{Label: LabelDefault, Weight: 1}
	Batch              = Signal{Label: LabelBatch, Weight: 0}
	AddToCart          = Signal{Label: "ADD_TO_CART", Weight: 16}
	ItemView           = Signal{Label: "ITEM_VIEW", Weight: 10}
	Apply              = Signal{Label: "APPLY", Weight: 18}
	Purchase           = Signal{Label: "PURCHASE", Weight: 20}
	Highlight          = Signal{Label: "HIGHLIGHT", Weight: 8}
	GlanceView         = Signal{Label: "GLANCE_VIEW", Weight: 14}
	CampaignClick      = Signal{Label: "CAMPAIGN_CLICK", Weight: 6}
	CategoryVisit      = Signal{Label: "CATEGORY_VISIT", Weight: 10}
	Share              = Signal{Label: "SHARE", Weight: 10}
	MerchantView       = Signal{Label: "MERCHANT_VIEW", Weight: 10}
	Reimbursed         = Signal{Label: "REIMBURSED", Weight: 20}
	Approved           = Signal{Label: "APPROVED", Weight: 18}
	Rejected           = Signal{Label: "REJECTED", Weight: 18}
	ShareArticle       = Signal{Label: "SHARE_ARTICLE", Weight: 10}
	Comment            = Signal{Label: "COMMENT", Weight: 12}
	PerspectivesSwitch = Signal{Label: "PERSPECTIVES_SWITCH", Weight: 8}
	Repost             = Signal{Label: "REPOST", Weight: 20}
	Subscribe          = Signal{Label: "SUBSCRIBE", Weight: 18}
	ShareProfile       = Signal{Label: "SHARE_PROFILE", Weight: 10}
	PaidSubscribe      = Signal{Label: "PAID_SUBSCRIBE", Weight: 20}
	Save               = Signal{Label: "SAVE", Weight: 8}
	FollowTopic        = Signal{Label: "FOLLOW_TOPIC", Weight: 10}
	Watch              = Signal{Label: "WATCH", Weight: 20}
	ClickLink          = Signal{Label: "CLICK_LINK", Weight: 6}
	Recommend          = Signal{Label: "RECOMMEND", Weight: 12}
	Follow             = Signal{Label: "FOLLOW", Weight: 10}
	VisitProfile       = Signal{Label: "VISIT_PROFILE", Weight: 12}
	AutoPlay           = Signal{Label: "AUTO_PLAY", Weight: 4}
	SaveArticle        = Signal{Label: "SAVE_ARTICLE", Weight: 8}
	Replay             = Signal{Label: "REPLAY", Weight: 20}
	Read               = Signal{Label: "READ", Weight: 14}
	Like               = Signal{Label: "LIKE", Weight: 8}
	ClickEmailLink     = Signal{Label: "CLICK_EMAIL_LINK", Weight: 6}
	AddToList          = Signal{Label: "ADD_TO_LIST", Weight: 12}
	FollowAuthor       = Signal{Label: "FOLLOW_AUTHOR", Weight: 10}
	Search             = Signal{Label: "SEARCH", Weight: 15}
	ClickAd            = Signal{Label: "CLICK_AD", Weight: 6}
)

// builtins is the ordered set of signals every table starts from.
// It is read-only; tables copy it.
var builtins = []Signal{
	Default, Batch, AddToCart, ItemView, Apply, Purchase, Highlight, GlanceView,
	CampaignClick, CategoryVisit, Share, MerchantView, Reimbursed, Approved,
	Rejected, ShareArticle, Comment, PerspectivesSwitch, Repost, Subscribe,
	ShareProfile, PaidSubscribe, Save, FollowTopic, Watch, ClickLink, Recommend,
	Follow, VisitProfile, AutoPlay, SaveArticle, Replay, Read, Like,
	ClickEmailLink, AddToList, FollowAuthor, Search, ClickAd,
}

// Builtins returns a copy of the built-in signals in declaration order.
func Builtins() []Signal {
	out := make([]Signal, len(builtins))
	copy(out, builtins)
	return out
}

// Table is an ordered label -> signal lookup owned by a single blueprint.
type Table struct {
	order   []string
	signals map[string]Signal
}

// NewTable builds a table from the built-in signals plus extra declarations.
// A declared signal whose label already exists overrides its weight within
// this table only. Labels are normalized to upper case.
func NewTable(extra ...Signal) (*Table, error) {
	t := &Table{
		order:   make([]string, 0, len(builtins)+len(extra)),
		signals: make(map[string]Signal, len(builtins)+len(extra)),
	}

	for _, s := range builtins {
		t.put(s)
	}

	for _, s := range extra {
		label := strings.ToUpper(strings.TrimSpace(s.Label))
		if label == "" {
			return nil, fmt.Errorf("signal: empty label in declaration")
		}
		if label == LabelBatch || label == LabelDefault {
			return nil, fmt.Errorf("signal: %q is a reserved label", label)
		}
		t.put(Signal{Label: label, Weight: s.Weight})
	}

	return t, nil
}

func (t *Table) put(s Signal) {
	if _, ok := t.signals[s.Label]; !ok {
		t.order = append(t.order, s.Label)
	}
	t.signals[s.Label] = s
}

// Lookup returns the signal registered under label.
func (t *Table) Lookup(label string) (Signal, bool) {
	s, ok := t.signals[strings.ToUpper(label)]
	return s, ok
}

// Labels returns every label in the table in registration order.
func (t *Table) Labels() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Len returns the number of signals in the table.
func (t *Table) Len() int {
	return len(t.order)
}
