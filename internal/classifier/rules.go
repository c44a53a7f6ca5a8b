package classifier

import (
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// RuleOverlay holds extra regex patterns appended to the built-in tables.
// The built-in tables are the minimum rule set; an overlay only adds rules,
// it never removes or reorders them.
type RuleOverlay struct {
	Synthesis     []string `yaml:"synthesis"`
	Direct        []string `yaml:"direct"`
	Academic      []string `yaml:"academic"`
	Code          []string `yaml:"code"`
	Documentation []string `yaml:"documentation"`
}

// LoadOverlay reads a rule overlay from a YAML file.
func LoadOverlay(path string) (*RuleOverlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "classifier: read overlay %s", path)
	}

	// The YAML has a top-level "patterns" key.
	var wrapper struct {
		Patterns RuleOverlay `yaml:"patterns"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "classifier: parse overlay")
	}

	return &wrapper.Patterns, nil
}

// WithOverlay returns a Classifier extended with the overlay's patterns.
// Invalid regexes are rejected rather than silently skipped.
func (c *Classifier) WithOverlay(o *RuleOverlay) (*Classifier, error) {
	ext := &Classifier{
		synthesis:     c.synthesis,
		direct:        c.direct,
		academic:      c.academic,
		code:          c.code,
		documentation: c.documentation,
	}

	appendAll := func(dst []*regexp.Regexp, exprs []string) ([]*regexp.Regexp, error) {
		for _, e := range exprs {
			re, err := regexp.Compile(e)
			if err != nil {
				return nil, eris.Wrapf(err, "classifier: compile overlay pattern %q", e)
			}
			dst = append(dst[:len(dst):len(dst)], re)
		}
		return dst, nil
	}

	var err error
	if ext.synthesis, err = appendAll(ext.synthesis, o.Synthesis); err != nil {
		return nil, err
	}
	if ext.direct, err = appendAll(ext.direct, o.Direct); err != nil {
		return nil, err
	}
	if ext.academic, err = appendAll(ext.academic, o.Academic); err != nil {
		return nil, err
	}
	if ext.code, err = appendAll(ext.code, o.Code); err != nil {
		return nil, err
	}
	if ext.documentation, err = appendAll(ext.documentation, o.Documentation); err != nil {
		return nil, err
	}

	return ext, nil
}
