package estimator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"arrival-predictor/internal/route"
)

// identityObjectives are the regression objectives whose prediction is the
// raw margin, so summing leaves and base_score gives minutes directly.
var identityObjectives = map[string]bool{
	"":                     true,
	"reg:squarederror":     true,
	"reg:linear":           true,
	"reg:absoluteerror":    true,
	"reg:pseudohubererror": true,
	"reg:squaredlogerror":  true,
	"reg:quantileerror":    true,
}

// TreeEnsemble evaluates a gradient boosted tree model saved by XGBoost in
// its JSON format (Booster.save_model("model.json")).
type TreeEnsemble struct {
	baseScore float64
	features  []string
	trees     []tree
}

type tree struct {
	left, right []int
	feature     []int
	cond        []float32
	defaultLeft []bool
}

// LoadTreeEnsemble reads a model file.
func LoadTreeEnsemble(path string) (*TreeEnsemble, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()

	m, err := ParseTreeEnsemble(f)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	return m, nil
}

type modelFile struct {
	Learner struct {
		FeatureNames    []string `json:"feature_names"`
		GradientBooster struct {
			Name  string `json:"name"`
			Model struct {
				Trees []treeFile `json:"trees"`
			} `json:"model"`
		} `json:"gradient_booster"`
		LearnerModelParam struct {
			BaseScore string `json:"base_score"`
		} `json:"learner_model_param"`
		Objective struct {
			Name string `json:"name"`
		} `json:"objective"`
	} `json:"learner"`
}

type treeFile struct {
	LeftChildren    []int     `json:"left_children"`
	RightChildren   []int     `json:"right_children"`
	SplitIndices    []int     `json:"split_indices"`
	SplitConditions []float64 `json:"split_conditions"`
	DefaultLeft     flags     `json:"default_left"`
	SplitType       []int     `json:"split_type"`
}

// flags accepts both [0,1] and [false,true] encodings.
type flags []bool

func (f *flags) UnmarshalJSON(b []byte) error {
	var raw []any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make([]bool, len(raw))
	for i, v := range raw {
		switch v := v.(type) {
		case bool:
			out[i] = v
		case float64:
			out[i] = v != 0
		default:
			return fmt.Errorf("default_left[%d]: unexpected %T", i, v)
		}
	}
	*f = out
	return nil
}

// ParseTreeEnsemble decodes an XGBoost JSON model.
func ParseTreeEnsemble(r io.Reader) (*TreeEnsemble, error) {
	var mf modelFile
	if err := json.NewDecoder(r).Decode(&mf); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}

	l := mf.Learner
	if name := l.GradientBooster.Name; name != "gbtree" {
		return nil, fmt.Errorf("unsupported booster %q", name)
	}
	if !identityObjectives[l.Objective.Name] {
		return nil, fmt.Errorf("unsupported objective %q", l.Objective.Name)
	}

	base, err := parseBaseScore(l.LearnerModelParam.BaseScore)
	if err != nil {
		return nil, err
	}

	features := l.FeatureNames
	if len(features) == 0 {
		features = route.FeatureNames
	}
	for _, name := range features {
		if _, ok := (route.FeatureVector{}).Value(name); !ok {
			return nil, fmt.Errorf("model uses unknown feature %q", name)
		}
	}

	m := &TreeEnsemble{baseScore: base, features: features}
	for i, tf := range l.GradientBooster.Model.Trees {
		t, err := buildTree(tf, len(features))
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		m.trees = append(m.trees, t)
	}
	if len(m.trees) == 0 {
		return nil, fmt.Errorf("model has no trees")
	}
	return m, nil
}

// parseBaseScore handles "5E-1" as well as the bracketed "[5E-1]" written
// by newer XGBoost releases.
func parseBaseScore(s string) (float64, error) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return 0.5, nil
	}
	if i := strings.IndexByte(s, ','); i >= 0 {
		return 0, fmt.Errorf("multi-target base_score %q not supported", s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("base_score %q: %w", s, err)
	}
	return v, nil
}

func buildTree(tf treeFile, numFeatures int) (tree, error) {
	n := len(tf.LeftChildren)
	if n == 0 {
		return tree{}, fmt.Errorf("empty tree")
	}
	if len(tf.RightChildren) != n || len(tf.SplitIndices) != n || len(tf.SplitConditions) != n {
		return tree{}, fmt.Errorf("inconsistent node arrays")
	}
	for _, st := range tf.SplitType {
		if st != 0 {
			return tree{}, fmt.Errorf("categorical splits not supported")
		}
	}

	t := tree{
		left:        tf.LeftChildren,
		right:       tf.RightChildren,
		feature:     tf.SplitIndices,
		cond:        make([]float32, n),
		defaultLeft: make([]bool, n),
	}
	for i := 0; i < n; i++ {
		t.cond[i] = float32(tf.SplitConditions[i])
		if i < len(tf.DefaultLeft) {
			t.defaultLeft[i] = tf.DefaultLeft[i]
		}
		if t.left[i] == -1 {
			continue
		}
		if t.left[i] <= 0 || t.left[i] >= n || t.right[i] <= 0 || t.right[i] >= n {
			return tree{}, fmt.Errorf("node %d has children out of range", i)
		}
		if t.feature[i] < 0 || t.feature[i] >= numFeatures {
			return tree{}, fmt.Errorf("node %d splits on feature %d of %d", i, t.feature[i], numFeatures)
		}
	}
	return t, nil
}

// leaf walks the tree. Leaf values live in split_conditions.
func (t tree) leaf(x []float64) float64 {
	node := 0
	for steps := 0; t.left[node] != -1; steps++ {
		if steps > len(t.left) {
			return math.NaN()
		}
		v := x[t.feature[node]]
		switch {
		case math.IsNaN(v):
			if t.defaultLeft[node] {
				node = t.left[node]
			} else {
				node = t.right[node]
			}
		case float32(v) < t.cond[node]:
			node = t.left[node]
		default:
			node = t.right[node]
		}
	}
	return float64(t.cond[node])
}

// Features returns the feature order the model was trained on.
func (m *TreeEnsemble) Features() []string { return m.features }

func (m *TreeEnsemble) Predict(ctx context.Context, f route.FeatureVector) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	x := make([]float64, len(m.features))
	for i, name := range m.features {
		x[i], _ = f.Value(name)
	}

	sum := m.baseScore
	for _, t := range m.trees {
		sum += t.leaf(x)
	}
	if err := CheckFinite(sum); err != nil {
		return 0, err
	}
	return sum, nil
}
