package launch

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pilotrun/pilotrun/pkg/api"
)

// fixture is one golden test case: a task, its allocation and the expected
// compiler output per method.
type fixture struct {
	Task    api.Task           `json:"task"`
	Slots   api.SlotAllocation `json:"slots"`
	Results fixtureResults     `json:"results"`
}

type fixtureResults struct {
	LM               map[string]fixtureResult `json:"lm"`
	ResourceFile     map[string]string        `json:"resource_file"`
	ResourceFilename map[string]string        `json:"resource_filename"`
	Errors           map[string]string        `json:"errors"`
}

type fixtureResult struct {
	Command string `json:"command"`
	Wrapper string `json:"wrapper"`
}

var fixtureFiles = []string{"task.000000.json", "task.000001.json"}

func loadFixture(t testing.TB, name string) fixture {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	var fx fixture
	if err := json.Unmarshal(raw, &fx); err != nil {
		t.Fatalf("parse fixture %s: %v", name, err)
	}
	return fx
}

func TestEncodeGolden(t *testing.T) {
	for _, file := range fixtureFiles {
		fx := loadFixture(t, file)
		t.Run(fx.Task.UID, func(t *testing.T) {
			for name, want := range fx.Results.LM {
				method, err := ParseMethod(name)
				if err != nil {
					t.Fatalf("ParseMethod(%q) failed: %v", name, err)
				}
				res, err := Encode(method, fx.Task, fx.Slots)
				if err != nil {
					t.Fatalf("Encode(%s) failed: %v", name, err)
				}
				if res.Command != want.Command {
					t.Errorf("%s command mismatch\n got: %s\nwant: %s", name, res.Command, want.Command)
				}
				if res.Wrapper != want.Wrapper {
					t.Errorf("%s wrapper mismatch\n got: %s\nwant: %s", name, res.Wrapper, want.Wrapper)
				}
			}
		})
	}
}

// Compiling the same placement twice must yield byte-identical output.
func TestEncodeDeterministic(t *testing.T) {
	fx := loadFixture(t, "task.000001.json")
	for name := range fx.Results.LM {
		method, err := ParseMethod(name)
		if err != nil {
			t.Fatalf("ParseMethod(%q) failed: %v", name, err)
		}
		first, err := Encode(method, fx.Task, fx.Slots)
		if err != nil {
			t.Fatalf("first Encode(%s) failed: %v", name, err)
		}
		second, err := Encode(method, fx.Task, fx.Slots)
		if err != nil {
			t.Fatalf("second Encode(%s) failed: %v", name, err)
		}
		if first.Command != second.Command || first.Wrapper != second.Wrapper {
			t.Errorf("%s is not deterministic", name)
		}
		if len(first.SideFiles) != len(second.SideFiles) {
			t.Fatalf("%s side file count changed between runs", name)
		}
		for i := range first.SideFiles {
			if string(first.SideFiles[i].Content) != string(second.SideFiles[i].Content) {
				t.Errorf("%s side file %d differs between runs", name, i)
			}
		}
	}
}

func TestResourceLayoutFile(t *testing.T) {
	for _, file := range fixtureFiles {
		fx := loadFixture(t, file)
		res, err := Encode(JSRun, fx.Task, fx.Slots)
		if err != nil {
			t.Fatalf("Encode(jsrun) failed: %v", err)
		}
		if len(res.SideFiles) != 1 {
			t.Fatalf("expected 1 side file, got %d", len(res.SideFiles))
		}
		sf := res.SideFiles[0]
		if sf.Name != fx.Results.ResourceFilename["jsrun"] {
			t.Errorf("Expected side file %q, got %q", fx.Results.ResourceFilename["jsrun"], sf.Name)
		}
		if string(sf.Content) != fx.Results.ResourceFile["jsrun"] {
			t.Errorf("resource layout mismatch\n got: %q\nwant: %q", sf.Content, fx.Results.ResourceFile["jsrun"])
		}
	}
}

// Only jsrun emits side files; everything else must not touch the sandbox.
func TestNoStraySideFiles(t *testing.T) {
	fx := loadFixture(t, "task.000001.json")
	for name := range fx.Results.LM {
		if name == "jsrun" {
			continue
		}
		method, _ := ParseMethod(name)
		res, err := Encode(method, fx.Task, fx.Slots)
		if err != nil {
			t.Fatalf("Encode(%s) failed: %v", name, err)
		}
		if len(res.SideFiles) != 0 {
			t.Errorf("%s emitted %d side files, expected none", name, len(res.SideFiles))
		}
	}
}

func TestDataFrameworksNotApplicable(t *testing.T) {
	fx := loadFixture(t, "task.000000.json")
	for name := range fx.Results.Errors {
		method, err := ParseMethod(name)
		if err != nil {
			t.Fatalf("ParseMethod(%q) failed: %v", name, err)
		}
		res, err := Encode(method, fx.Task, fx.Slots)
		if !errors.Is(err, ErrMethodNotApplicable) {
			t.Errorf("Encode(%s): expected ErrMethodNotApplicable, got %v", name, err)
		}
		if res.Command != "" || res.Wrapper != "" || len(res.SideFiles) != 0 {
			t.Errorf("Encode(%s) returned a partial result alongside the error", name)
		}
	}
}

func TestParseMethod(t *testing.T) {
	cases := []struct {
		in   string
		want Method
	}{
		{"fork", Fork},
		{"SSH", SSH},
		{"MpiRun", MPIRun},
		{" jsrun ", JSRun},
		{"orte_lib", ORTELib},
		{"prte", PRTE},
	}
	for _, c := range cases {
		got, err := ParseMethod(c.in)
		if err != nil {
			t.Fatalf("ParseMethod(%q) failed: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ParseMethod(%q): expected %s, got %s", c.in, c.want, got)
		}
	}

	if _, err := ParseMethod("slurm"); !errors.Is(err, ErrUnsupportedMethod) {
		t.Errorf("Expected ErrUnsupportedMethod for unknown name, got %v", err)
	}
}

func TestMethodsListsAll(t *testing.T) {
	methods := Methods()
	if len(methods) != len(methodNames) {
		t.Fatalf("expected %d methods, got %d", len(methodNames), len(methods))
	}
	if methods[0] != Fork || methods[len(methods)-1] != Funcs {
		t.Errorf("methods are not in declaration order")
	}
	for _, m := range methods {
		if m.String() == "" {
			t.Errorf("method %d has no name", int(m))
		}
	}
}

func TestEncodeUnknownMethod(t *testing.T) {
	fx := loadFixture(t, "task.000000.json")
	if _, err := Encode(Method(99), fx.Task, fx.Slots); !errors.Is(err, ErrUnsupportedMethod) {
		t.Errorf("Expected ErrUnsupportedMethod for out-of-range method, got %v", err)
	}
}

func TestEncodeRejectsMalformedSlots(t *testing.T) {
	fx := loadFixture(t, "task.000000.json")

	cases := []struct {
		name   string
		mutate func(*api.Task, *api.SlotAllocation)
	}{
		{"no executable", func(task *api.Task, _ *api.SlotAllocation) {
			task.Description.Executable = ""
		}},
		{"zero processes", func(task *api.Task, _ *api.SlotAllocation) {
			task.Description.CPUProcesses = 0
		}},
		{"no nodes", func(_ *api.Task, slots *api.SlotAllocation) {
			slots.Nodes = nil
		}},
		{"unnamed node", func(_ *api.Task, slots *api.SlotAllocation) {
			slots.Nodes[0].Name = ""
		}},
		{"empty core group", func(_ *api.Task, slots *api.SlotAllocation) {
			slots.Nodes[0].CoreMap = [][]int{{}}
		}},
		{"slot count mismatch", func(_ *api.Task, slots *api.SlotAllocation) {
			slots.Nodes[0].CoreMap = [][]int{{0}, {1}}
		}},
		{"gpu count mismatch", func(_ *api.Task, slots *api.SlotAllocation) {
			slots.Nodes[0].GPUMap = [][]int{{0}}
		}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			task, slots := fx.Task, fx.Slots
			slots.Nodes = append([]api.NodeAllocation(nil), fx.Slots.Nodes...)
			c.mutate(&task, &slots)

			res, err := Encode(MPIRun, task, slots)
			var verr *api.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if res.Command != "" {
				t.Errorf("got command %q for invalid input", res.Command)
			}
		})
	}
}

// DVM launchers address Cray nodes by bare nid even when the allocation
// names them "<machine>_<nid>".
func TestDVMHostMangling(t *testing.T) {
	fx := loadFixture(t, "task.000000.json")
	fx.Slots.Nodes[0].Name = "titan_00042"

	res, err := Encode(ORTE, fx.Task, fx.Slots)
	if err != nil {
		t.Fatalf("Encode(orte) failed: %v", err)
	}
	want := "-host 00042 "
	if !strings.Contains(res.Command, want) {
		t.Errorf("Expected mangled host list %q in %q", want, res.Command)
	}

	// Non-DVM launchers keep the name verbatim.
	res, err = Encode(MPIRun, fx.Task, fx.Slots)
	if err != nil {
		t.Fatalf("Encode(mpirun) failed: %v", err)
	}
	if !strings.Contains(res.Command, "-host titan_00042 ") {
		t.Errorf("mpirun mangled the hostname: %q", res.Command)
	}
}

func BenchmarkEncodeMPIRun(b *testing.B) {
	fx := loadFixture(b, "task.000001.json")

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := Encode(MPIRun, fx.Task, fx.Slots); err != nil {
			b.Fatalf("Encode failed: %v", err)
		}
	}
}

func BenchmarkEncodeJSRun(b *testing.B) {
	fx := loadFixture(b, "task.000001.json")

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := Encode(JSRun, fx.Task, fx.Slots); err != nil {
			b.Fatalf("Encode failed: %v", err)
		}
	}
}
