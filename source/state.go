package source

import (
	"strconv"
	"time"

	"pulseview/record"
)

// State is the subset of the Pulse state document the dashboard renders.
type State struct {
	VMs        []Guest       `json:"vms"`
	Containers []Guest       `json:"containers"`
	Storage    []Storage     `json:"storage"`
	PBS        []PBSInstance `json:"pbs"`
	PVEBackups PVEBackups    `json:"pveBackups"`
	LastUpdate time.Time     `json:"lastUpdate"`
}

// Usage is a used/total pair with a precomputed percentage.
type Usage struct {
	Total int64   `json:"total"`
	Used  int64   `json:"used"`
	Free  int64   `json:"free"`
	Usage float64 `json:"usage"`
}

type Guest struct {
	ID         string   `json:"id"`
	VMID       int      `json:"vmid"`
	Name       string   `json:"name"`
	Node       string   `json:"node"`
	Instance   string   `json:"instance"`
	Status     string   `json:"status"`
	Type       string   `json:"type"`
	CPU        float64  `json:"cpu"`
	CPUs       int      `json:"cpus"`
	Memory     Usage    `json:"memory"`
	Disk       Usage    `json:"disk"`
	NetworkIn  int64    `json:"networkIn"`
	NetworkOut int64    `json:"networkOut"`
	DiskRead   int64    `json:"diskRead"`
	DiskWrite  int64    `json:"diskWrite"`
	Uptime     int64    `json:"uptime"`
	Template   bool     `json:"template"`
	Tags       []string `json:"tags,omitempty"`
}

type Storage struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Node    string  `json:"node"`
	Type    string  `json:"type"`
	Status  string  `json:"status"`
	Total   int64   `json:"total"`
	Used    int64   `json:"used"`
	Free    int64   `json:"free"`
	Usage   float64 `json:"usage"`
	Content string  `json:"content"`
	Shared  bool    `json:"shared"`
	Enabled bool    `json:"enabled"`
	Active  bool    `json:"active"`
}

type PVEBackups struct {
	BackupTasks    []BackupTask    `json:"backupTasks"`
	GuestSnapshots []GuestSnapshot `json:"guestSnapshots"`
}

type BackupTask struct {
	ID        string    `json:"id"`
	Node      string    `json:"node"`
	Type      string    `json:"type"`
	VMID      int       `json:"vmid"`
	Status    string    `json:"status"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Size      int64     `json:"size"`
	Error     string    `json:"error"`
}

type GuestSnapshot struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Node        string    `json:"node"`
	Type        string    `json:"type"`
	VMID        int       `json:"vmid"`
	Time        time.Time `json:"time"`
	Description string    `json:"description"`
	VMState     bool      `json:"vmstate"`
	SizeBytes   int64     `json:"sizeBytes"`
}

type PBSInstance struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	BackupJobs []PBSJob  `json:"backupJobs"`
	SyncJobs   []PBSSync `json:"syncJobs"`
}

type PBSJob struct {
	ID         string    `json:"id"`
	Store      string    `json:"store"`
	Type       string    `json:"type"`
	VMID       string    `json:"vmid"`
	LastBackup time.Time `json:"lastBackup"`
	NextRun    time.Time `json:"nextRun"`
	Status     string    `json:"status"`
	Error      string    `json:"error"`
}

type PBSSync struct {
	ID       string    `json:"id"`
	Store    string    `json:"store"`
	Remote   string    `json:"remote"`
	Status   string    `json:"status"`
	LastSync time.Time `json:"lastSync"`
	NextRun  time.Time `json:"nextRun"`
	Error    string    `json:"error"`
}

func (st *State) guestRecords() []record.Record {
	out := make([]record.Record, 0, len(st.VMs)+len(st.Containers))
	add := func(g Guest, kind string) {
		if g.Template {
			return
		}
		typ := g.Type
		if typ == "" {
			typ = kind
		}
		running := g.Status == "running"
		fields := map[string]record.Value{
			"name":   record.Str(g.Name),
			"vmid":   record.Num(float64(g.VMID)),
			"type":   record.Str(typ),
			"node":   record.Str(g.Node),
			"status": record.Str(g.Status),
			"uptime": record.Num(float64(g.Uptime)),
		}
		// Stopped guests report stale counters; leave their metrics missing so
		// they never satisfy a threshold.
		if running {
			fields["cpu"] = record.Num(g.CPU * 100)
			fields["mem"] = record.Num(g.Memory.Usage)
			fields["memUsed"] = record.Num(float64(g.Memory.Used))
			fields["memTotal"] = record.Num(float64(g.Memory.Total))
			fields["netin"] = record.Num(float64(g.NetworkIn))
			fields["netout"] = record.Num(float64(g.NetworkOut))
			fields["diskread"] = record.Num(float64(g.DiskRead))
			fields["diskwrite"] = record.Num(float64(g.DiskWrite))
			if g.Disk.Total > 0 {
				fields["disk"] = record.Num(g.Disk.Usage)
				fields["diskUsed"] = record.Num(float64(g.Disk.Used))
				fields["diskTotal"] = record.Num(float64(g.Disk.Total))
			}
		}
		out = append(out, record.Record{Key: g.ID, Group: g.Node, Fields: fields})
	}
	for _, vm := range st.VMs {
		add(vm, "qemu")
	}
	for _, ct := range st.Containers {
		add(ct, "lxc")
	}
	return out
}

func (st *State) storageRecords() []record.Record {
	out := make([]record.Record, 0, len(st.Storage))
	for _, s := range st.Storage {
		fields := map[string]record.Value{
			"name":    record.Str(s.Name),
			"type":    record.Str(s.Type),
			"status":  record.Str(s.Status),
			"content": record.Str(s.Content),
			"shared":  record.Str(strconv.FormatBool(s.Shared)),
		}
		if s.Total > 0 {
			fields["usage"] = record.Num(s.Usage)
			fields["used"] = record.Num(float64(s.Used))
			fields["total"] = record.Num(float64(s.Total))
			fields["free"] = record.Num(float64(s.Free))
		}
		out = append(out, record.Record{Key: s.ID, Group: s.Node, Fields: fields})
	}
	return out
}

func (st *State) snapshotRecords() []record.Record {
	out := make([]record.Record, 0, len(st.PVEBackups.GuestSnapshots))
	for _, s := range st.PVEBackups.GuestSnapshots {
		fields := map[string]record.Value{
			"name":        record.Str(s.Name),
			"vmid":        record.Num(float64(s.VMID)),
			"type":        record.Str(s.Type),
			"node":        record.Str(s.Node),
			"description": record.Str(s.Description),
			"vmstate":     record.Str(strconv.FormatBool(s.VMState)),
		}
		setTime(fields, "time", s.Time)
		if s.SizeBytes > 0 {
			fields["size"] = record.Num(float64(s.SizeBytes))
		}
		out = append(out, record.Record{Key: s.ID, Fields: fields})
	}
	return out
}

func (st *State) backupRecords() []record.Record {
	out := make([]record.Record, 0, len(st.PVEBackups.BackupTasks))
	for _, b := range st.PVEBackups.BackupTasks {
		fields := map[string]record.Value{
			"node":   record.Str(b.Node),
			"type":   record.Str(b.Type),
			"vmid":   record.Num(float64(b.VMID)),
			"status": record.Str(b.Status),
			"error":  record.Str(b.Error),
		}
		setTime(fields, "start", b.StartTime)
		if !b.StartTime.IsZero() && !b.EndTime.IsZero() {
			fields["duration"] = record.Num(b.EndTime.Sub(b.StartTime).Seconds())
		}
		if b.Size > 0 {
			fields["size"] = record.Num(float64(b.Size))
		}
		out = append(out, record.Record{Key: b.ID, Fields: fields})
	}
	return out
}

func (st *State) pbsRecords() []record.Record {
	var out []record.Record
	for _, inst := range st.PBS {
		group := inst.Name
		if group == "" {
			group = inst.ID
		}
		for _, j := range inst.BackupJobs {
			fields := map[string]record.Value{
				"job":    record.Str("backup"),
				"store":  record.Str(j.Store),
				"target": record.Str(j.Type + "/" + j.VMID),
				"status": record.Str(j.Status),
				"error":  record.Str(j.Error),
			}
			setTime(fields, "last", j.LastBackup)
			setTime(fields, "next", j.NextRun)
			out = append(out, record.Record{Key: inst.ID + "/backup/" + j.ID, Group: group, Fields: fields})
		}
		for _, j := range inst.SyncJobs {
			fields := map[string]record.Value{
				"job":    record.Str("sync"),
				"store":  record.Str(j.Store),
				"target": record.Str(j.Remote),
				"status": record.Str(j.Status),
				"error":  record.Str(j.Error),
			}
			setTime(fields, "last", j.LastSync)
			setTime(fields, "next", j.NextRun)
			out = append(out, record.Record{Key: inst.ID + "/sync/" + j.ID, Group: group, Fields: fields})
		}
	}
	return out
}

func setTime(fields map[string]record.Value, name string, t time.Time) {
	if t.IsZero() || t.Unix() <= 0 {
		return
	}
	fields[name] = record.Num(float64(t.Unix()))
}
