package lnplugin

import (
	"encoding/json"
	"path/filepath"
)

// Option types understood by the host.
const (
	OptionString = "string"
	OptionInt    = "int"
	OptionBool   = "bool"
	OptionFlag   = "flag"
)

// Option is a plugin option the host accepts on its own command line or
// configuration file and forwards to the plugin during init.
type Option struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Default     interface{} `json:"default,omitempty"`
	Description string      `json:"description"`
	Dynamic     bool        `json:"dynamic,omitempty"`
}

// MethodInfo describes an RPC method added to the host's command set.
type MethodInfo struct {
	Name        string `json:"name"`
	Usage       string `json:"usage"`
	Description string `json:"description"`
}

// HookInfo names a hook the plugin registers for.
type HookInfo struct {
	Name string `json:"name"`
}

// Manifest is the reply to getmanifest.
type Manifest struct {
	Options       []Option     `json:"options"`
	RPCMethods    []MethodInfo `json:"rpcmethods"`
	Subscriptions []string     `json:"subscriptions"`
	Hooks         []HookInfo   `json:"hooks"`
	Dynamic       bool         `json:"dynamic"`
}

// InitConfig is the configuration section of the init request.
type InitConfig struct {
	LightningDir string `json:"lightning-dir"`
	RPCFile      string `json:"rpc-file"`
	Network      string `json:"network"`
	Startup      bool   `json:"startup"`
}

// RPCPath returns the path of the host's unix RPC socket.
func (c *InitConfig) RPCPath() string {
	return filepath.Join(c.LightningDir, c.RPCFile)
}

// InitParams is the parameter object of the init request.
type InitParams struct {
	Options       map[string]json.RawMessage `json:"options"`
	Configuration InitConfig                 `json:"configuration"`
}

// setConfigParams is the parameter object the host sends when a dynamic
// option is changed at runtime.
type setConfigParams struct {
	Config string          `json:"config"`
	Val    json.RawMessage `json:"val"`
}
