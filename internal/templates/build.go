package templates

import (
	"fmt"
	"strings"
	"text/template"
)

// BuildParams is the payload the build service expects for a deployment.
type BuildParams struct {
	Dist         string `json:"dist"`
	Env          string `json:"env"`
	BuildCommand string `json:"buildCommand"`
}

type buildRule struct {
	command *template.Template
	env     *template.Template
}

func newBuildRule(command, env string) buildRule {
	return buildRule{
		command: template.Must(template.New("command").Option("missingkey=error").Parse(command)),
		env:     template.Must(template.New("env").Option("missingkey=error").Parse(env)),
	}
}

// Sites are published under https://{username}.github.io/csb-{sandboxId}/,
// so bundlers that need an absolute public path get it here.
var (
	defaultBuildRule = newBuildRule("build", "")

	buildRules = map[string]buildRule{
		"styleguidist":     newBuildRule("styleguide:build", ""),
		"nuxt":             newBuildRule("generate", ""),
		"parcel":           newBuildRule("build --public-url /csb-{{.SandboxID}}/", ""),
		"preact-cli":       newBuildRule("build --no-prerender", ""),
		"gatsby":           newBuildRule("build --prefix-paths", ""),
		"create-react-app": newBuildRule("build", "PUBLIC_URL=https://{{.Username}}.github.io/csb-{{.SandboxID}}/"),
	}
)

type buildVars struct {
	SandboxID string
	Username  string
}

// BuildParams derives the deployment payload for a sandbox of this template
// owned by username.
func (t Template) BuildParams(sandboxID, username string) (BuildParams, error) {
	rule, ok := buildRules[t.Name]
	if !ok {
		rule = defaultBuildRule
	}

	vars := buildVars{SandboxID: sandboxID, Username: username}

	command, err := render(rule.command, vars)
	if err != nil {
		return BuildParams{}, fmt.Errorf("failed to render build command for %s: %w", t.Name, err)
	}
	env, err := render(rule.env, vars)
	if err != nil {
		return BuildParams{}, fmt.Errorf("failed to render env for %s: %w", t.Name, err)
	}

	return BuildParams{
		Dist:         t.DistDir,
		Env:          env,
		BuildCommand: command,
	}, nil
}

func render(tpl *template.Template, vars buildVars) (string, error) {
	var sb strings.Builder
	if err := tpl.Execute(&sb, vars); err != nil {
		return "", err
	}
	return sb.String(), nil
}
