package animation

import "testing"

func TestClassifyPriorityOrder(t *testing.T) {
	cases := []struct {
		text string
		want Strategy
	}{
		{"SyntaxError: invalid syntax", StrategySyntaxError},
		{"NameError: name 'XYZ' is not defined", StrategyNameError},
		{"AttributeError: 'Circle' object has no attribute 'foo'", StrategyAttributeError},
		{"AttributeError: 'Mobject' object has no attribute 'foo'", StrategyManimAPI},
		{"TypeError: unsupported operand type(s)", StrategyTypeError},
		{"RuntimeError: maximum recursion depth exceeded", StrategyRuntimeError},
		{"KeyError: 'missing'", StrategyGeneral},
	}
	for _, c := range cases {
		if got := Classify(c.text); got != c.want {
			t.Errorf("Classify(%q) = %q, want %q", c.text, got, c.want)
		}
	}
}
