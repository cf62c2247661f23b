package hostconfig

import "testing"

const desktopConfig = `{
  "mcpServers": {
    "filesystem": {
      "command": "npx",
      "cwd": "/somewhere/else"
    },
    "labarchives": {
      "command": "pixi",
      "args": ["run", "labarchives-mcp"],
      "cwd": "/opt/labarchives-mcp",
      "env": {
        "LABARCHIVES_CONFIG_PATH": "/opt/labarchives-mcp/conf/secrets.yml"
      }
    }
  }
}`

func TestParse_SelectsStructuredForValidJSON(t *testing.T) {
	lookup, mode := Parse([]byte(desktopConfig))
	if mode != ModeStructured {
		t.Fatalf("mode = %s, want %s", mode, ModeStructured)
	}
	if _, ok := lookup.(*Document); !ok {
		t.Fatalf("expected *Document, got %T", lookup)
	}
}

func TestParse_FallsBackToLenientForBrokenDocument(t *testing.T) {
	broken := `{"mcpServers": {"labarchives": {"cwd": "/opt/labarchives-mcp"}}`
	lookup, mode := Parse([]byte(broken))
	if mode != ModeLenient {
		t.Fatalf("mode = %s, want %s", mode, ModeLenient)
	}
	value, ok := lookup.Lookup(Key("mcpServers", "labarchives", "cwd"))
	if !ok || value != "/opt/labarchives-mcp" {
		t.Fatalf("lookup = %q, %v", value, ok)
	}
}

// Both implementations must agree on the same documents.
func TestLookupImplementationsAgree(t *testing.T) {
	doc, err := ParseDocument([]byte(desktopConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	impls := map[string]Lookup{
		"structured": doc,
		"lenient":    NewLineLookup([]byte(desktopConfig)),
	}

	cases := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{key: "mcpServers.labarchives", want: "", wantOK: true},
		{key: "mcpServers.labarchives.cwd", want: "/opt/labarchives-mcp", wantOK: true},
		{key: "mcpServers.filesystem.cwd", want: "/somewhere/else", wantOK: true},
		{key: "mcpServers.labarchives.env.LABARCHIVES_CONFIG_PATH", want: "/opt/labarchives-mcp/conf/secrets.yml", wantOK: true},
		{key: "mcpServers.labarchives.missing", wantOK: false},
		{key: "mcpServers.other", wantOK: false},
		{key: "", wantOK: false},
	}

	for name, impl := range impls {
		for _, tc := range cases {
			t.Run(name+"/"+tc.key, func(t *testing.T) {
				got, ok := impl.Lookup(tc.key)
				if ok != tc.wantOK {
					t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
				}
				if got != tc.want {
					t.Fatalf("value = %q, want %q", got, tc.want)
				}
			})
		}
	}
}

func TestLineLookup_ReadsValueFromFollowingLine(t *testing.T) {
	raw := "\"labarchives\": {\n  \"cwd\":\n    \"/srv/mcp\",\n}"
	value, ok := NewLineLookup([]byte(raw)).Lookup("labarchives.cwd")
	if !ok || value != "/srv/mcp" {
		t.Fatalf("lookup = %q, %v", value, ok)
	}
}

func TestLineLookup_UnescapesWindowsPaths(t *testing.T) {
	raw := `"labarchives": { "cwd": "C:\\Tools\\labarchives" `
	value, ok := NewLineLookup([]byte(raw)).Lookup("labarchives.cwd")
	if !ok || value != `C:\Tools\labarchives` {
		t.Fatalf("lookup = %q, %v", value, ok)
	}
}

func TestDocument_NullValueIsMissing(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"labarchives": {"cwd": null}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := doc.Lookup("labarchives.cwd"); ok {
		t.Fatalf("expected null cwd to be reported missing")
	}
}

func TestParseDocument_RejectsNonMapping(t *testing.T) {
	for _, raw := range []string{"", "[1, 2]", `"just a string"`} {
		if _, err := ParseDocument([]byte(raw)); err == nil {
			t.Errorf("ParseDocument(%q) expected error", raw)
		}
	}
}

func TestLineLookup_StaysInsideServerBlock(t *testing.T) {
	// Truncated, so Parse falls back to the line scanner.
	truncated := `{
  "mcpServers": {
    "labarchives": {
      "command": "pixi"
    },
    "other": {
      "cwd": "/srv/other",
      "env": {"labarchives": {"cwd": "/nested"}}
    }
  }
`
	lookup, mode := Parse([]byte(truncated))
	if mode != ModeLenient {
		t.Fatalf("mode = %s, want %s", mode, ModeLenient)
	}

	cases := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{key: "mcpServers.labarchives.cwd", wantOK: false},
		{key: "mcpServers.labarchives.command", want: "pixi", wantOK: true},
		{key: "mcpServers.other.cwd", want: "/srv/other", wantOK: true},
		{key: "mcpServers.cwd", wantOK: false},
		{key: "labarchives.cwd", wantOK: false},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			got, ok := lookup.Lookup(tc.key)
			if ok != tc.wantOK || got != tc.want {
				t.Fatalf("lookup = %q, %v; want %q, %v", got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestLineLookup_IgnoresKeysInsideStrings(t *testing.T) {
	raw := `{"labarchives": {"note": "\"cwd\": \"/fake\"", "cwd": "/real",`
	value, ok := NewLineLookup([]byte(raw)).Lookup("labarchives.cwd")
	if !ok || value != "/real" {
		t.Fatalf("lookup = %q, %v", value, ok)
	}
}

func TestLineLookup_NonStringScalars(t *testing.T) {
	raw := `{"labarchives": {"disabled": false, "cwd": null, "port": 8080}`
	lookup := NewLineLookup([]byte(raw))

	if value, ok := lookup.Lookup("labarchives.disabled"); !ok || value != "false" {
		t.Fatalf("disabled = %q, %v", value, ok)
	}
	if value, ok := lookup.Lookup("labarchives.port"); !ok || value != "8080" {
		t.Fatalf("port = %q, %v", value, ok)
	}
	if _, ok := lookup.Lookup("labarchives.cwd"); ok {
		t.Fatalf("null cwd should be missing")
	}
}
