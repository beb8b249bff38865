package portal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Selectors maps the portal's logical elements to CSS selectors. The file
// keys keep the names the portal operators already use in their selector
// files, so an existing selectors.json drops in unchanged.
type Selectors struct {
	UserField    string `json:"campo_usuario" yaml:"campo_usuario"`
	PassField    string `json:"campo_senha" yaml:"campo_senha"`
	LoginButton  string `json:"botao_entrar" yaml:"botao_entrar"`
	MenuRegister string `json:"menu_cadastro" yaml:"menu_cadastro"`
	MenuProposal string `json:"menu_proposta" yaml:"menu_proposta"`
	QueryField   string `json:"campo_cpf" yaml:"campo_cpf"`
	ResultsGrid  string `json:"grid_resultados" yaml:"grid_resultados"`

	// Optional. When empty, records are submitted by blurring the query
	// field instead of clicking a search button.
	SearchButton string `json:"botao_consultar,omitempty" yaml:"botao_consultar,omitempty"`

	// Optional. Element that proves login succeeded; defaults to the
	// register menu, the first thing the operator flow touches after login.
	PostLogin string `json:"pos_login,omitempty" yaml:"pos_login,omitempty"`
}

// PostLoginMarker returns the selector waited on after submitting credentials.
func (s *Selectors) PostLoginMarker() string {
	if s.PostLogin != "" {
		return s.PostLogin
	}
	return s.MenuRegister
}

// LoadSelectors reads and validates a selector file. YAML is detected by
// extension; everything else is parsed as JSON.
func LoadSelectors(path string) (*Selectors, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newError(CodeConfiguration, fmt.Sprintf("selector file %q not readable", path), err)
	}

	var sel Selectors
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &sel)
	default:
		err = json.Unmarshal(data, &sel)
	}
	if err != nil {
		return nil, newError(CodeConfiguration, fmt.Sprintf("selector file %q did not parse", path), err)
	}

	if err := sel.Validate(); err != nil {
		return nil, err
	}
	return &sel, nil
}

// Validate checks that every required selector is present. Runs at load
// time, before any browser work starts.
func (s *Selectors) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"campo_usuario", s.UserField},
		{"campo_senha", s.PassField},
		{"botao_entrar", s.LoginButton},
		{"menu_cadastro", s.MenuRegister},
		{"menu_proposta", s.MenuProposal},
		{"campo_cpf", s.QueryField},
		{"grid_resultados", s.ResultsGrid},
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return newError(CodeConfiguration, fmt.Sprintf("selector file missing required keys: %s", strings.Join(missing, ", ")), nil)
	}
	return nil
}
