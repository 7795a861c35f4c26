package main

// BranchFilter limits a trigger to matching branches and tags.
type BranchFilter struct {
	Branches []string `yaml:"branches,omitempty"`
	Tags     []string `yaml:"tags,omitempty"`
}

// Trigger lists the events that start the workflow. A nil `PullRequest`
// leaves pull requests out.
type Trigger struct {
	Push        BranchFilter  `yaml:"push,omitempty"`
	PullRequest *BranchFilter `yaml:"pull_request,omitempty"`
}

// Args are the `with` inputs of an action step.
type Args map[string]interface{}

// Env maps environment variable names to values.
type Env map[string]string

// Step runs either an action (`Uses`) or a shell command (`Run`).
type Step struct {
	Name string `yaml:"name,omitempty"`
	If   string `yaml:"if,omitempty"`
	Uses string `yaml:"uses,omitempty"`
	ID   string `yaml:"id,omitempty"`
	Run  string `yaml:"run,omitempty"`
	With Args   `yaml:"with,omitempty"`
	Env  Env    `yaml:"env,omitempty"`
}

// Matrix fans a job out over an explicit list of targets rather than the
// cross product of their fields.
type Matrix struct {
	Include []Target `yaml:"include"`
}

type Strategy struct {
	FailFast bool   `yaml:"fail-fast"`
	Matrix   Matrix `yaml:"matrix"`
}

type Job struct {
	RunsOn   string    `yaml:"runs-on"`
	Needs    []string  `yaml:"needs,omitempty"`
	Strategy *Strategy `yaml:"strategy,omitempty"`
	Env      Env       `yaml:"env,omitempty"`
	Steps    []Step    `yaml:"steps"`
}

type Workflow struct {
	Name string         `yaml:"name"`
	On   Trigger        `yaml:"on,omitempty"`
	Jobs map[string]Job `yaml:"jobs"`
}
