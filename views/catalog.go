package views

import (
	"sort"

	"pulseview/record"
)

// Dashboard lists guests grouped by node.
var Dashboard = View{
	Name:  "dashboard",
	Title: "guests",
	Kind:  record.Guests,
	Columns: []Column{
		{Field: "name", Header: "Name", DefaultAscending: true},
		{Field: "type", Header: "Type", DefaultAscending: true},
		{Field: "vmid", Header: "ID", Numeric: true, DefaultAscending: true, Format: Integer},
		{Field: "status", Header: "Status", DefaultAscending: true},
		{Field: "uptime", Header: "Uptime", Numeric: true, Format: Uptime},
		{Field: "cpu", Header: "CPU", Numeric: true, Format: Percent, Step: 5, Max: 100},
		{Field: "mem", Header: "Memory", Numeric: true, Format: Percent, Step: 5, Max: 100},
		{Field: "disk", Header: "Disk", Numeric: true, Format: Percent, Step: 5, Max: 100},
		{Field: "diskread", Header: "Disk Read", Numeric: true, Format: Rate, Step: 1 << 20},
		{Field: "diskwrite", Header: "Disk Write", Numeric: true, Format: Rate, Step: 1 << 20},
		{Field: "netin", Header: "Net In", Numeric: true, Format: Rate, Step: 1 << 20},
		{Field: "netout", Header: "Net Out", Numeric: true, Format: Rate, Step: 1 << 20},
	},
	Grouped:         true,
	DefaultSort:     "name",
	ThresholdFields: []string{"cpu", "mem", "disk", "diskread", "diskwrite", "netin", "netout"},
	AlertLevels:     map[string]float64{"cpu": 90, "mem": 90, "disk": 90},
	ChartMetric:     "cpu",
}

// Storage lists storage pools grouped by node.
var Storage = View{
	Name:  "storage",
	Title: "storage",
	Kind:  record.Storage,
	Columns: []Column{
		{Field: "name", Header: "Storage", DefaultAscending: true},
		{Field: "type", Header: "Type", DefaultAscending: true},
		{Field: "content", Header: "Content", DefaultAscending: true},
		{Field: "status", Header: "Status", DefaultAscending: true},
		{Field: "shared", Header: "Shared", DefaultAscending: true},
		{Field: "usage", Header: "Usage", Numeric: true, Format: Percent, Step: 5, Max: 100},
		{Field: "used", Header: "Used", Numeric: true, Format: Bytes},
		{Field: "total", Header: "Total", Numeric: true, Format: Bytes},
	},
	Grouped:         true,
	DefaultSort:     "name",
	ThresholdFields: []string{"usage"},
	AlertLevels:     map[string]float64{"usage": 85},
	ChartMetric:     "usage",
}

// Snapshots lists guest snapshots, newest first.
var Snapshots = View{
	Name:  "snapshots",
	Title: "snapshots",
	Kind:  record.Snapshots,
	Columns: []Column{
		{Field: "vmid", Header: "ID", Numeric: true, DefaultAscending: true, Format: Integer},
		{Field: "type", Header: "Type", DefaultAscending: true},
		{Field: "name", Header: "Snapshot", DefaultAscending: true},
		{Field: "node", Header: "Node", DefaultAscending: true},
		{Field: "time", Header: "Created", Numeric: true, Format: Age},
		{Field: "size", Header: "Size", Numeric: true, Format: Bytes, Step: 1 << 30},
		{Field: "description", Header: "Description", DefaultAscending: true},
	},
	DefaultSort:     "time",
	ThresholdFields: []string{"size"},
}

// Backups lists PVE backup tasks, newest first.
var Backups = View{
	Name:  "backups",
	Title: "backups",
	Kind:  record.PVEBackups,
	Columns: []Column{
		{Field: "vmid", Header: "ID", Numeric: true, DefaultAscending: true, Format: Integer},
		{Field: "node", Header: "Node", DefaultAscending: true},
		{Field: "type", Header: "Type", DefaultAscending: true},
		{Field: "status", Header: "Status", DefaultAscending: true},
		{Field: "start", Header: "Started", Numeric: true, Format: Age},
		{Field: "duration", Header: "Duration", Numeric: true, Format: Seconds, Step: 60},
		{Field: "size", Header: "Size", Numeric: true, Format: Bytes, Step: 1 << 30},
		{Field: "error", Header: "Error", DefaultAscending: true},
	},
	DefaultSort:     "start",
	ThresholdFields: []string{"duration", "size"},
}

// PBS lists Proxmox Backup Server jobs grouped by server.
var PBS = View{
	Name:  "pbs",
	Title: "PBS jobs",
	Kind:  record.PBSTasks,
	Columns: []Column{
		{Field: "job", Header: "Job", DefaultAscending: true},
		{Field: "store", Header: "Datastore", DefaultAscending: true},
		{Field: "target", Header: "Target", DefaultAscending: true},
		{Field: "status", Header: "Status", DefaultAscending: true},
		{Field: "last", Header: "Last Run", Numeric: true, Format: Age},
		{Field: "next", Header: "Next Run", Numeric: true, DefaultAscending: true, Format: Age},
		{Field: "error", Header: "Error", DefaultAscending: true},
	},
	Grouped:     true,
	DefaultSort: "last",
}

// All lists the views in default page order.
var All = []View{Dashboard, Storage, Snapshots, Backups, PBS}

// ByName returns the view named name.
func ByName(name string) (View, bool) {
	for _, v := range All {
		if v.Name == name {
			return v, true
		}
	}
	return View{}, false
}

// Names returns the view names sorted alphabetically.
func Names() []string {
	out := make([]string, len(All))
	for i, v := range All {
		out[i] = v.Name
	}
	sort.Strings(out)
	return out
}
