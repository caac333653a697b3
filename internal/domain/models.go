package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

type TraitType string

const (
	TraitLevel      TraitType = "Level"
	TraitHappiness  TraitType = "Happiness"
	TraitPower      TraitType = "Power"
	TraitMultiplier TraitType = "Multiplier"
	TraitPoints     TraitType = "Points"
)

// KnownTraits lists every trait a pet document may carry.
var KnownTraits = []TraitType{TraitLevel, TraitHappiness, TraitPower, TraitMultiplier, TraitPoints}

func IsKnownTrait(t TraitType) bool {
	for _, k := range KnownTraits {
		if k == t {
			return true
		}
	}
	return false
}

// Attribute keeps the raw JSON value so non-numeric traits written by other
// tools survive a rewrite untouched.
type Attribute struct {
	TraitType TraitType       `json:"trait_type"`
	Value     json.RawMessage `json:"value"`
}

func NumericAttribute(t TraitType, v float64) Attribute {
	return Attribute{TraitType: t, Value: FormatNumber(v)}
}

// Number reads the value as a float, accepting JSON numbers and numeric strings.
func (a Attribute) Number() (float64, bool) {
	if len(a.Value) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(a.Value, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(a.Value, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func FormatNumber(v float64) json.RawMessage {
	return json.RawMessage(strconv.FormatFloat(v, 'f', -1, 64))
}

// Metadata is the pet document kept on the storage network. Fields this
// service does not model are kept in Extra and written back as-is.
type Metadata struct {
	Name        string
	Description string
	Image       string
	Creator     string
	Attributes  []Attribute
	Extra       map[string]json.RawMessage
}

var metadataFields = map[string]bool{"name": true, "description": true, "image": true, "creator": true, "attributes": true}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Metadata{}
	for key, value := range raw {
		var err error
		switch key {
		case "name":
			err = unmarshalLoose(value, &m.Name)
		case "description":
			err = unmarshalLoose(value, &m.Description)
		case "image":
			err = unmarshalLoose(value, &m.Image)
		case "creator":
			err = unmarshalLoose(value, &m.Creator)
		case "attributes":
			if string(value) != "null" {
				err = json.Unmarshal(value, &m.Attributes)
			}
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]json.RawMessage)
			}
			m.Extra[key] = value
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+len(metadataFields))
	for k, v := range m.Extra {
		if !metadataFields[k] {
			out[k] = v
		}
	}
	out["name"] = m.Name
	out["description"] = m.Description
	out["image"] = m.Image
	if m.Creator != "" {
		out["creator"] = m.Creator
	}
	attrs := m.Attributes
	if attrs == nil {
		attrs = []Attribute{}
	}
	out["attributes"] = attrs
	return json.Marshal(out)
}

// unmarshalLoose tolerates null and non-string scalars in string fields.
func unmarshalLoose(value json.RawMessage, dst *string) error {
	if string(value) == "null" {
		return nil
	}
	if err := json.Unmarshal(value, dst); err == nil {
		return nil
	}
	*dst = string(value)
	return nil
}

func (m *Metadata) Attribute(t TraitType) (Attribute, bool) {
	for _, a := range m.Attributes {
		if a.TraitType == t {
			return a, true
		}
	}
	return Attribute{}, false
}

func (m *Metadata) TraitNumber(t TraitType, fallback float64) float64 {
	if a, ok := m.Attribute(t); ok {
		if v, ok := a.Number(); ok {
			return v
		}
	}
	return fallback
}

type HistoryRole string

const (
	RoleUser  HistoryRole = "user"
	RoleModel HistoryRole = "model"
)

// HistoryItem is one turn of an editing session as the browser stores it.
type HistoryItem struct {
	Role  HistoryRole   `json:"role"`
	Parts []HistoryPart `json:"parts"`
}

type HistoryPart struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// Turn is provider-neutral generation content.
type Turn struct {
	Role  HistoryRole
	Parts []Part
}

type Part struct {
	Text       string
	InlineData *Blob
}

type Blob struct {
	MIMEType string
	Data     []byte
}

type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Receipt is what the storage network returns for an accepted upload.
type Receipt struct {
	ID        string `json:"id"`
	Size      int64  `json:"size"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type Battle struct {
	BattleID       uint64 `json:"battleId"`
	Pet1           uint64 `json:"pet1"`
	Pet2           uint64 `json:"pet2"`
	Creator        string `json:"creator"`
	Active         bool   `json:"active"`
	TotalStakePet1 string `json:"totalStakePet1"` // wei, decimal
	TotalStakePet2 string `json:"totalStakePet2"`
	Winner         uint64 `json:"winner"`
}

// WinnerKnown reports whether Winner carries a result.
func (b Battle) WinnerKnown() bool {
	return !b.Active
}

type Pet struct {
	TokenID    uint64    `json:"tokenId"`
	Index      uint64    `json:"-"`
	Owner      string    `json:"owner"`
	TokenURI   string    `json:"tokenUri"`
	Image      string    `json:"image"`
	Name       string    `json:"name"`
	Creator    string    `json:"creator,omitempty"`
	Multiplier string    `json:"multiplier"`
	Level      string    `json:"level"`
	Happiness  float64   `json:"happiness"`
	Power      float64   `json:"power"`
	Points     float64   `json:"points"`
	FetchedAt  time.Time `json:"fetchedAt"`
}

type EvolutionAction string

const (
	ActionFeed   EvolutionAction = "feed"
	ActionTrain  EvolutionAction = "train"
	ActionEvolve EvolutionAction = "evolve"
)

type EvolutionStatus string

const (
	EvolutionPending EvolutionStatus = "pending"
	EvolutionApplied EvolutionStatus = "applied"
	EvolutionFailed  EvolutionStatus = "failed"
)

// Evolution journals one on-chain action and the metadata update that must follow it.
type Evolution struct {
	ID          string // nanoid
	TokenID     uint64
	RootTxID    string
	Action      EvolutionAction
	Changes     json.RawMessage
	ChainTxHash string
	Status      EvolutionStatus
	EvolvedTxID string
	LastError   string
	Attempts    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
