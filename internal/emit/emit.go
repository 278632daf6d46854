// Package emit renders block.IR into the target textual dialect:
// line-oriented, LF-terminated, deterministic for identical input.
package emit

import (
	"fmt"
	"strings"

	"github.com/hartools/har-lolicode/internal/block"
)

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func quote(s string) string {
	return `"` + escaper.Replace(s) + `"`
}

// Script renders a complete sequence of top-level blocks.
func Script(ir []block.IR) string {
	var b strings.Builder
	for _, blk := range ir {
		writeBlock(&b, blk, 0)
	}
	return b.String()
}

func indent(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
}

func writeBlock(b *strings.Builder, blk block.IR, depth int) {
	switch v := blk.(type) {
	case block.Request:
		writeRequest(b, v, depth)
	case block.Parse:
		writeParse(b, v, depth)
	case block.SetVariable:
		indent(b, depth)
		fmt.Fprintf(b, "SET %s = %s\n", v.Name, quote(v.Value))
	case block.If:
		indent(b, depth)
		fmt.Fprintf(b, "IF %s\n", v.Cond)
		for _, s := range v.Then {
			writeBlock(b, s, depth+1)
		}
		if len(v.Else) > 0 {
			indent(b, depth)
			b.WriteString("ELSE\n")
			for _, s := range v.Else {
				writeBlock(b, s, depth+1)
			}
		}
		indent(b, depth)
		b.WriteString("END IF\n")
	case block.While:
		indent(b, depth)
		fmt.Fprintf(b, "WHILE %s\n", v.Cond)
		for _, s := range v.Body {
			writeBlock(b, s, depth+1)
		}
		indent(b, depth)
		b.WriteString("END WHILE\n")
	case block.Try:
		indent(b, depth)
		b.WriteString("TRY\n")
		for _, s := range v.Try {
			writeBlock(b, s, depth+1)
		}
		for _, c := range v.Catches {
			indent(b, depth)
			fmt.Fprintf(b, "CATCH IF %s\n", c.Cond)
			for _, s := range c.IR {
				writeBlock(b, s, depth+1)
			}
		}
		if len(v.Finally) > 0 {
			indent(b, depth)
			b.WriteString("FINALLY\n")
			for _, s := range v.Finally {
				writeBlock(b, s, depth+1)
			}
		}
		indent(b, depth)
		b.WriteString("END TRY\n")
	case block.Delay:
		indent(b, depth)
		fmt.Fprintf(b, "WAIT %d\n", v.Ms)
	case block.Log:
		indent(b, depth)
		fmt.Fprintf(b, "LOG %s\n", quote(v.Msg))
	case block.Mark:
		indent(b, depth)
		fmt.Fprintf(b, "MARK %s %s\n", strings.ToUpper(string(v.Status)), quote(v.Msg))
	default:
		panic(fmt.Sprintf("emit: unhandled block variant %T", blk))
	}
}

func writeRequest(b *strings.Builder, r block.Request, depth int) {
	indent(b, depth)
	fmt.Fprintf(b, "BLOCK:Request\n")
	indent(b, depth+1)
	fmt.Fprintf(b, "REQUEST %s %s\n", r.Method, quote(r.URL))
	for _, h := range r.Headers {
		indent(b, depth+1)
		fmt.Fprintf(b, "HEADER %s %s\n", quote(h.Name), quote(h.Value))
	}
	for _, c := range r.Cookies {
		indent(b, depth+1)
		fmt.Fprintf(b, "COOKIE %s %s DOMAIN=%s PATH=%s\n", quote(c.Name), quote(c.Value), quote(c.Domain), quote(c.Path))
	}
	if r.ContentType != "" {
		indent(b, depth+1)
		fmt.Fprintf(b, "CONTENTTYPE %s\n", quote(r.ContentType))
	}
	if r.BodyTemplate != "" {
		indent(b, depth+1)
		fmt.Fprintf(b, "BODY %s\n", quote(r.BodyTemplate))
	}
	indent(b, depth)
	b.WriteString("ENDBLOCK\n")
}

func writeParse(b *strings.Builder, p block.Parse, depth int) {
	indent(b, depth)
	varDecl := fmt.Sprintf(`VAR %s = "" `, p.OutputVar)
	b.WriteString(varDecl)
	fmt.Fprintf(b, "// %s\n", varTypeComment(p.OutputVar))

	indent(b, depth)
	switch p.Method {
	case block.ParseCssAttr:
		fmt.Fprintf(b, "PARSE %s CSS %s ATTRIBUTE %s\n", quote(p.OutputVar), quote(p.Expression), quote("value"))
	case block.ParseJSONPath:
		fmt.Fprintf(b, "PARSE %s JSON %s\n", quote(p.OutputVar), quote(p.Expression))
	default:
		fmt.Fprintf(b, "PARSE %s REGEX %s\n", quote(p.OutputVar), quote(p.Expression))
	}
}

func varTypeComment(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "csrf") || lower == "_token":
		return "CSRF_TOKEN"
	case strings.Contains(lower, "session"):
		return "SESSION_TOKEN"
	case strings.Contains(lower, "access_token") || strings.Contains(lower, "jwt"):
		return "JWT_ACCESS"
	case strings.Contains(lower, "state"):
		return "OAUTH_STATE"
	default:
		return "STRING"
	}
}
