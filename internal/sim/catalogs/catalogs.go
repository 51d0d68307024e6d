package catalogs

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	ErrUnknownAction    = errors.New("unknown action")
	ErrUnknownRoot      = errors.New("unknown root task")
	ErrUnknownSet       = errors.New("unknown behavior set")
	ErrUnknownArchetype = errors.New("unknown archetype")
	ErrCycle            = errors.New("behavior set inheritance cycle")
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Library is the set of action and root task ids the host can build.
type Library interface {
	HasAction(id string) bool
	HasRoot(id string) bool
}

type Catalogs struct {
	Sets       SetCatalog
	Archetypes ArchetypeCatalog
}

type SetCatalog struct {
	ByID map[string]BehaviorSet
	// Flat holds each set's actions with parents resolved, parent first.
	Flat map[string][]string
	// Scoring holds each set's extra considerations, parent first.
	Scoring map[string][]Consideration
	Digest  string
}

type BehaviorSet struct {
	ID             string          `json:"id"`
	Parent         string          `json:"parent,omitempty"`
	Description    string          `json:"description,omitempty"`
	Actions        []string        `json:"actions"`
	Considerations []Consideration `json:"considerations,omitempty"`
}

// Consideration is an extra scoring term for one action, written as an
// expression over named facts. Its value goes through Curve, identity when
// nil, and multiplies the action's score.
type Consideration struct {
	Action string   `json:"action"`
	Name   string   `json:"name,omitempty"`
	Expr   string   `json:"expr"`
	Facts  []string `json:"facts,omitempty"`
	Curve  *Curve   `json:"curve,omitempty"`
}

// Curve names a response curve and its parameters. Unused parameters are
// ignored.
type Curve struct {
	Type      string  `json:"type"`
	Slope     float64 `json:"slope,omitempty"`
	Intercept float64 `json:"intercept,omitempty"`
	Exponent  float64 `json:"exponent,omitempty"`
	XShift    float64 `json:"x_shift,omitempty"`
	YShift    float64 `json:"y_shift,omitempty"`
	Steepness float64 `json:"steepness,omitempty"`
	Midpoint  float64 `json:"midpoint,omitempty"`
	Invert    bool    `json:"invert,omitempty"`
}

type ArchetypeCatalog struct {
	ByID   map[string]Archetype
	IDs    []string
	Digest string
}

// Archetype is an agent template. A non-empty Root drives the agent with
// that HTN root; otherwise it runs utility selection over its behavior set.
type Archetype struct {
	ID          string `json:"id"`
	BehaviorSet string `json:"behavior_set"`
	Root        string `json:"root,omitempty"`
	Hands       int    `json:"hands,omitempty"`
}

// Load reads configDir/behavior_sets/*.json and configDir/archetypes.json,
// validates both against their schemas and checks every id against lib.
func Load(configDir string, lib Library) (*Catalogs, error) {
	var c Catalogs

	if err := loadSets(filepath.Join(configDir, "behavior_sets"), lib, &c.Sets); err != nil {
		return nil, err
	}
	if err := loadArchetypes(filepath.Join(configDir, "archetypes.json"), lib, &c.Sets, &c.Archetypes); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalogs) Archetype(id string) (Archetype, bool) {
	a, ok := c.Archetypes.ByID[id]
	return a, ok
}

// Actions returns the flattened action ids of a behavior set.
func (c *Catalogs) Actions(setID string) []string {
	return append([]string(nil), c.Sets.Flat[setID]...)
}

// Considerations returns the extra considerations of a behavior set and its
// parents.
func (c *Catalogs) Considerations(setID string) []Consideration {
	return append([]Consideration(nil), c.Sets.Scoring[setID]...)
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func compileSchema(name string) (*jsonschema.Schema, error) {
	raw, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		return nil, err
	}
	return jsonschema.CompileString(name, string(raw))
}

// decodeValidated checks raw against schema and then decodes it into out.
func decodeValidated(schema *jsonschema.Schema, raw []byte, out any) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func loadSets(dir string, lib Library, out *SetCatalog) error {
	out.ByID = map[string]BehaviorSet{}
	out.Flat = map[string][]string{}
	out.Scoring = map[string][]Consideration{}

	schema, err := compileSchema("behavior_set.schema.json")
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".json") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	var concat bytes.Buffer
	for _, p := range files {
		name := "behavior_sets/" + filepath.Base(p)
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		concat.Write(b)
		concat.WriteByte('\n')

		var set BehaviorSet
		if err := decodeValidated(schema, b, &set); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if _, dup := out.ByID[set.ID]; dup {
			return fmt.Errorf("%s: duplicate id %s", name, set.ID)
		}
		for _, a := range set.Actions {
			if lib != nil && !lib.HasAction(a) {
				return fmt.Errorf("%s: %w: %s", name, ErrUnknownAction, a)
			}
		}
		for _, c := range set.Considerations {
			if _, err := expr.Compile(c.Expr); err != nil {
				return fmt.Errorf("%s: consideration for %s: %w", name, c.Action, err)
			}
		}
		out.ByID[set.ID] = set
	}
	out.Digest = sha256Hex(concat.Bytes())

	ids := make([]string, 0, len(out.ByID))
	for id := range out.ByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		chain, err := resolve(out.ByID, id)
		if err != nil {
			return fmt.Errorf("behavior set %s: %w", id, err)
		}
		flat := flattenActions(chain)
		var scoring []Consideration
		for i := len(chain) - 1; i >= 0; i-- {
			for _, c := range chain[i].Considerations {
				if !slices.Contains(flat, c.Action) {
					return fmt.Errorf("behavior set %s: consideration: %w: %s", id, ErrUnknownAction, c.Action)
				}
				scoring = append(scoring, c)
			}
		}
		out.Flat[id] = flat
		out.Scoring[id] = scoring
	}
	return nil
}

// Flatten resolves id's parent chain into one ordered action list. Parent
// actions come first; an action repeated lower in the chain keeps its first
// position.
func Flatten(sets map[string]BehaviorSet, id string) ([]string, error) {
	chain, err := resolve(sets, id)
	if err != nil {
		return nil, err
	}
	return flattenActions(chain), nil
}

// resolve returns id followed by its ancestors.
func resolve(sets map[string]BehaviorSet, id string) ([]BehaviorSet, error) {
	var chain []BehaviorSet
	seen := map[string]bool{}
	for cur := id; cur != ""; {
		if seen[cur] {
			return nil, fmt.Errorf("%w: %s", ErrCycle, cur)
		}
		seen[cur] = true
		s, ok := sets[cur]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSet, cur)
		}
		chain = append(chain, s)
		cur = s.Parent
	}
	return chain, nil
}

func flattenActions(chain []BehaviorSet) []string {
	var out []string
	added := map[string]bool{}
	for i := len(chain) - 1; i >= 0; i-- {
		for _, a := range chain[i].Actions {
			if added[a] {
				continue
			}
			added[a] = true
			out = append(out, a)
		}
	}
	return out
}

func loadArchetypes(path string, lib Library, sets *SetCatalog, out *ArchetypeCatalog) error {
	out.ByID = map[string]Archetype{}

	schema, err := compileSchema("archetypes.schema.json")
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []Archetype
	if err := decodeValidated(schema, raw, &defs); err != nil {
		return fmt.Errorf("archetypes.json: %w", err)
	}
	for _, a := range defs {
		if _, dup := out.ByID[a.ID]; dup {
			return fmt.Errorf("archetypes.json: duplicate id %s", a.ID)
		}
		if _, ok := sets.ByID[a.BehaviorSet]; !ok {
			return fmt.Errorf("archetypes.json: %s: %w: %s", a.ID, ErrUnknownSet, a.BehaviorSet)
		}
		if a.Root != "" && lib != nil && !lib.HasRoot(a.Root) {
			return fmt.Errorf("archetypes.json: %s: %w: %s", a.ID, ErrUnknownRoot, a.Root)
		}
		out.ByID[a.ID] = a
		out.IDs = append(out.IDs, a.ID)
	}
	return nil
}
