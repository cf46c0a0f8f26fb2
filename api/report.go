package api

// SysctlValue is one kernel parameter as read back from a stack.
type SysctlValue struct {
	Key   string `yaml:"key" json:"key"`
	Value string `yaml:"value" json:"value"`
	Error string `yaml:"error,omitempty" json:"error,omitempty"`
}

// QdiscRecord is one queuing discipline attached to an interface.
type QdiscRecord struct {
	Kind    string `yaml:"kind" json:"kind"`
	Handle  string `yaml:"handle" json:"handle"`
	Parent  string `yaml:"parent" json:"parent"`
	DelayMs uint32 `yaml:"delayMs,omitempty" json:"delayMs,omitempty"`
	Limit   uint32 `yaml:"limit,omitempty" json:"limit,omitempty"`
}

// ClassRecord is one traffic class of a classful qdisc.
type ClassRecord struct {
	Kind    string `yaml:"kind" json:"kind"`
	Handle  string `yaml:"handle" json:"handle"`
	Parent  string `yaml:"parent" json:"parent"`
	RateBps uint64 `yaml:"rateBps,omitempty" json:"rateBps,omitempty"`
	CeilBps uint64 `yaml:"ceilBps,omitempty" json:"ceilBps,omitempty"`
}

// QdiscTree is the full tree of one interface.
type QdiscTree struct {
	Interface string        `yaml:"interface" json:"interface"`
	Qdiscs    []QdiscRecord `yaml:"qdiscs" json:"qdiscs"`
	Classes   []ClassRecord `yaml:"classes,omitempty" json:"classes,omitempty"`
	Error     string        `yaml:"error,omitempty" json:"error,omitempty"`
}

// ScopeReport is what the verifier saw in one stack.
type ScopeReport struct {
	Scope   string        `yaml:"scope" json:"scope"`
	Present bool          `yaml:"present" json:"present"`
	Sysctls []SysctlValue `yaml:"sysctls,omitempty" json:"sysctls,omitempty"`
	Trees   []QdiscTree   `yaml:"trees,omitempty" json:"trees,omitempty"`
}

// Report is the verifier output for one side.
type Report struct {
	Side   SideID        `yaml:"side" json:"side"`
	Scopes []ScopeReport `yaml:"scopes" json:"scopes"`
}

// Sysctl returns the value recorded for key, if any.
func (s ScopeReport) Sysctl(key string) (string, bool) {
	for _, v := range s.Sysctls {
		if v.Key == key && v.Error == "" {
			return v.Value, true
		}
	}
	return "", false
}

// Tree returns the recorded tree of iface, if any.
func (s ScopeReport) Tree(iface string) (QdiscTree, bool) {
	for _, t := range s.Trees {
		if t.Interface == iface {
			return t, true
		}
	}
	return QdiscTree{}, false
}

// Mismatch is a difference between a report and an expected configuration.
type Mismatch struct {
	Scope    string `yaml:"scope" json:"scope"`
	What     string `yaml:"what" json:"what"`
	Expected string `yaml:"expected" json:"expected"`
	Actual   string `yaml:"actual" json:"actual"`
}
