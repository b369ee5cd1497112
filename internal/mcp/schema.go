package mcp

// StimulateInput defines the input for the neuron_stimulate tool.
type StimulateInput struct {
	Node string `json:"node" jsonschema:"Input neuron to stimulate: input1 or input2"`
}

// StimulateOutput defines the output for the neuron_stimulate tool.
type StimulateOutput struct {
	Node    string  `json:"node" jsonschema:"Neuron that was stimulated"`
	Applied bool    `json:"applied" jsonschema:"False when the neuron was still in its refractory period"`
	State   Summary `json:"state" jsonschema:"Model state after the frame that applied the stimulation"`
}

// ClickInput defines the input for the neuron_click tool.
type ClickInput struct {
	X int `json:"x" jsonschema:"Canvas x coordinate in pixels"`
	Y int `json:"y" jsonschema:"Canvas y coordinate in pixels"`
}

// ClickOutput defines the output for the neuron_click tool.
type ClickOutput struct {
	Hit     bool    `json:"hit" jsonschema:"Whether the click landed on an input neuron"`
	Node    string  `json:"node,omitempty" jsonschema:"Input neuron under the click"`
	Applied bool    `json:"applied" jsonschema:"Whether the hit neuron accepted the stimulation"`
	State   Summary `json:"state" jsonschema:"Model state after the frame that handled the click"`
}

// SnapshotInput defines the input for the neuron_snapshot tool.
type SnapshotInput struct{}

// SnapshotOutput defines the output for the neuron_snapshot tool.
type SnapshotOutput struct {
	State Summary `json:"state" jsonschema:"Current model state"`
}

// Summary is a flat view of one published frame.
type Summary struct {
	Frame   uint64  `json:"frame" jsonschema:"Sequence number of the frame"`
	Input1  bool    `json:"input1" jsonschema:"Whether input1 is active"`
	Input2  bool    `json:"input2" jsonschema:"Whether input2 is active"`
	Output  bool    `json:"output" jsonschema:"Whether the output neuron is active"`
	Fired   bool    `json:"fired" jsonschema:"Whether the output fired on this frame"`
	Level   float64 `json:"level" jsonschema:"Output charge"`
	Percent float64 `json:"percent" jsonschema:"Output charge as a percentage of the activation threshold"`
}
