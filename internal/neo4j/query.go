package neo4j

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"text/template/parse"
	"time"

	"github.com/tinytelemetry/graphsink/internal/model"
)

var sanitizer = strings.NewReplacer(
	"\n", " ",
	"\t", " ",
	"\r", "",
	";", "",
)

// Sanitize flattens a query to a single statement line: newlines and tabs become
// spaces, carriage returns and semicolons are removed.
func Sanitize(query string) string {
	return sanitizer.Replace(query)
}

// QueryTemplate renders a message into statement text. Placeholders are Go
// template actions over the stringified fields ({{.field}} or
// {{index . "dotted.field"}}). Cypher $param references are plain text here and
// are bound server-side from the statement parameters.
type QueryTemplate struct {
	text string
	tmpl *template.Template
}

// ParseTemplate parses a message query template.
func ParseTemplate(text string) (*QueryTemplate, error) {
	tmpl, err := template.New("query").Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: parse query template: %w", ErrConfiguration, err)
	}
	for _, t := range tmpl.Templates() {
		if t.Tree == nil {
			continue
		}
		if err := checkFieldAccess(t.Tree.Root); err != nil {
			return nil, fmt.Errorf("%w: parse query template: %w", ErrConfiguration, err)
		}
	}
	return &QueryTemplate{text: text, tmpl: tmpl}, nil
}

// checkFieldAccess rejects chained field access such as {{.a.b}}. Field values
// are flat strings, so a chain can never resolve and would fail every render.
func checkFieldAccess(node parse.Node) error {
	switch n := node.(type) {
	case nil:
		return nil
	case *parse.ListNode:
		if n == nil {
			return nil
		}
		for _, child := range n.Nodes {
			if err := checkFieldAccess(child); err != nil {
				return err
			}
		}
	case *parse.ActionNode:
		return checkFieldAccess(n.Pipe)
	case *parse.TemplateNode:
		return checkFieldAccess(n.Pipe)
	case *parse.IfNode:
		return checkBranch(&n.BranchNode)
	case *parse.RangeNode:
		return checkBranch(&n.BranchNode)
	case *parse.WithNode:
		return checkBranch(&n.BranchNode)
	case *parse.PipeNode:
		if n == nil {
			return nil
		}
		for _, cmd := range n.Cmds {
			if err := checkFieldAccess(cmd); err != nil {
				return err
			}
		}
	case *parse.CommandNode:
		for _, arg := range n.Args {
			if err := checkFieldAccess(arg); err != nil {
				return err
			}
		}
	case *parse.FieldNode:
		if len(n.Ident) > 1 {
			return fmt.Errorf("chained field %s is not supported, use {{index . %q}}", n, strings.Join(n.Ident, "."))
		}
	case *parse.ChainNode:
		return fmt.Errorf("chained field %s is not supported", n)
	case *parse.VariableNode:
		if len(n.Ident) > 1 {
			return fmt.Errorf("chained field %s is not supported", n)
		}
	}
	return nil
}

func checkBranch(n *parse.BranchNode) error {
	if err := checkFieldAccess(n.Pipe); err != nil {
		return err
	}
	if err := checkFieldAccess(n.List); err != nil {
		return err
	}
	return checkFieldAccess(n.ElseList)
}

// Text returns the unparsed template.
func (q *QueryTemplate) Text() string { return q.text }

// Render executes the template against msg and returns the sanitized statement.
func (q *QueryTemplate) Render(msg *model.Message) (string, error) {
	var b strings.Builder
	if err := q.tmpl.Execute(&b, templateContext(msg)); err != nil {
		return "", fmt.Errorf("render query template: %w", err)
	}
	return Sanitize(b.String()), nil
}

// templateContext flattens message fields to text for placeholder substitution.
func templateContext(msg *model.Message) map[string]string {
	ctx := make(map[string]string, msg.Len())
	msg.Range(func(key string, value any) bool {
		ctx[key] = stringify(value)
		return true
	})
	return ctx
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case bool, int, int32, int64, uint, uint32, uint64, json.Number:
		return fmt.Sprint(v)
	case fmt.Stringer:
		return v.String()
	default:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
		return fmt.Sprint(v)
	}
}
