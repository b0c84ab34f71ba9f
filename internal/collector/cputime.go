package collector

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
)

var procRoot = "/proc"

// cpuCluster groups cores sharing a base frequency. Clusters are ordered by
// ascending base frequency so cluster 0 is the efficiency cluster.
type cpuCluster struct {
	base  int64
	cpus  []int
	freqs []int64 // ascending scaling_available_frequencies, may be empty
}

type procTicks struct {
	utime int64
	stime int64
}

type uidCPU struct {
	userMs   int64
	systemMs int64
	activeMs int64
	cluster  []int64
	speed    [][]int64
}

// CPUTimeReader attributes per-process CPU tick deltas to the owning UID,
// split by cluster and frequency step.
type CPUTimeReader struct {
	mu             sync.Mutex
	ticksPerSecond int64
	clusters       []cpuCluster
	clusterOf      map[int]int // cpu id -> cluster index
	prev           map[int]procTicks
	uids           map[int32]*uidCPU
	log            *slog.Logger
}

// NewCPUTimeReader creates a reader, detecting CPU topology once.
func NewCPUTimeReader(ticksPerSecond int64, logger *slog.Logger) *CPUTimeReader {
	if ticksPerSecond <= 0 {
		ticksPerSecond = 100
	}
	r := &CPUTimeReader{
		ticksPerSecond: ticksPerSecond,
		clusterOf:      make(map[int]int),
		prev:           make(map[int]procTicks),
		uids:           make(map[int32]*uidCPU),
		log:            logger,
	}
	r.detectTopology()
	return r
}

// Clusters returns the number of detected clusters.
func (r *CPUTimeReader) Clusters() int {
	return len(r.clusters)
}

// detectTopology groups CPUs by base frequency. On hybrid Intel, E-cores
// report a lower base frequency than P-cores; elsewhere every core lands in
// one cluster.
func (r *CPUTimeReader) detectTopology() {
	cpuDirs, err := filepath.Glob(filepath.Join(sysfsRoot, "devices/system/cpu/cpu[0-9]*"))
	if err != nil {
		return
	}

	byBase := map[int64]*cpuCluster{}
	for _, dir := range cpuDirs {
		id, err := strconv.Atoi(filepath.Base(dir)[3:])
		if err != nil {
			continue
		}
		freqDir := filepath.Join(dir, "cpufreq")
		base, _ := readIntFile(filepath.Join(freqDir, "base_frequency"))
		if base == 0 {
			base, _ = readIntFile(filepath.Join(freqDir, "cpuinfo_max_freq"))
		}
		c, ok := byBase[base]
		if !ok {
			c = &cpuCluster{base: base, freqs: readFreqList(filepath.Join(freqDir, "scaling_available_frequencies"))}
			byBase[base] = c
		}
		c.cpus = append(c.cpus, id)
	}

	for _, c := range byBase {
		r.clusters = append(r.clusters, *c)
	}
	slices.SortFunc(r.clusters, func(a, b cpuCluster) int {
		switch {
		case a.base < b.base:
			return -1
		case a.base > b.base:
			return 1
		}
		return 0
	})
	for i, c := range r.clusters {
		for _, id := range c.cpus {
			r.clusterOf[id] = i
		}
	}
}

func readFreqList(path string) []int64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var freqs []int64
	for _, f := range strings.Fields(string(data)) {
		if v, err := strconv.ParseInt(f, 10, 64); err == nil {
			freqs = append(freqs, v)
		}
	}
	slices.Sort(freqs)
	return freqs
}

// speedBin returns the highest step not above cur.
func speedBin(freqs []int64, cur int64) int {
	bin := 0
	for i, f := range freqs {
		if f <= cur {
			bin = i
		}
	}
	return bin
}

// Update reads /proc/*/stat and credits tick deltas since the previous call
// to the owning UID. The first observation of a pid only sets its baseline.
func (r *CPUTimeReader) Update(onBattery bool) error {
	entries, err := os.ReadDir(procRoot)
	if err != nil {
		return fmt.Errorf("read %s: %w", procRoot, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	freqs := r.currentFreqs()
	current := make(map[int]procTicks, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		st, err := readProcStat(pid)
		if err != nil {
			continue
		}
		uid, err := readProcUID(pid)
		if err != nil {
			continue
		}
		current[pid] = st.ticks

		prev, ok := r.prev[pid]
		if !ok {
			continue
		}
		du, ds := st.ticks.utime-prev.utime, st.ticks.stime-prev.stime
		if du < 0 || ds < 0 || du+ds == 0 {
			continue
		}
		acc := r.uid(int32(uid))
		if !onBattery {
			continue
		}
		userMs, systemMs := r.ticksToMs(du), r.ticksToMs(ds)
		acc.userMs += userMs
		acc.systemMs += systemMs
		acc.activeMs += userMs + systemMs

		c, ok := r.clusterOf[st.cpu]
		if !ok {
			continue
		}
		acc.cluster[c] += userMs + systemMs
		acc.speed[c][speedBin(r.clusters[c].freqs, freqs[st.cpu])] += userMs + systemMs
	}
	r.prev = current
	r.log.Debug("cpu time updated", "procs", len(current), "uids", len(r.uids), "on_battery", onBattery)
	return nil
}

func (r *CPUTimeReader) ticksToMs(ticks int64) int64 {
	return ticks * 1000 / r.ticksPerSecond
}

func (r *CPUTimeReader) uid(uid int32) *uidCPU {
	acc, ok := r.uids[uid]
	if !ok {
		acc = &uidCPU{
			cluster: make([]int64, len(r.clusters)),
			speed:   make([][]int64, len(r.clusters)),
		}
		for i, c := range r.clusters {
			acc.speed[i] = make([]int64, max(len(c.freqs), 1))
		}
		r.uids[uid] = acc
	}
	return acc
}

func (r *CPUTimeReader) currentFreqs() map[int]int64 {
	freqs := make(map[int]int64, len(r.clusterOf))
	for id := range r.clusterOf {
		path := filepath.Join(sysfsRoot, fmt.Sprintf("devices/system/cpu/cpu%d/cpufreq/scaling_cur_freq", id))
		freqs[id], _ = readIntFile(path)
	}
	return freqs
}

// UIDs lists every UID seen using CPU, in ascending order.
func (r *CPUTimeReader) UIDs() []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	uids := make([]int32, 0, len(r.uids))
	for uid := range r.uids {
		uids = append(uids, uid)
	}
	slices.Sort(uids)
	return uids
}

// UIDTimeMs returns the user and system time of uid.
func (r *CPUTimeReader) UIDTimeMs(uid int32) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.uids[uid]
	if !ok {
		return []int64{0, 0}
	}
	return []int64{acc.userMs, acc.systemMs}
}

func (r *CPUTimeReader) ActiveTimeMs(uid int32) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if acc, ok := r.uids[uid]; ok {
		return acc.activeMs
	}
	return 0
}

func (r *CPUTimeReader) ClusterTimeMs(uid int32, cluster int) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.uids[uid]
	if !ok || cluster < 0 || cluster >= len(acc.cluster) {
		return 0
	}
	return acc.cluster[cluster]
}

func (r *CPUTimeReader) SpeedTimeMs(uid int32, cluster, speed int) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.uids[uid]
	if !ok || cluster < 0 || cluster >= len(acc.speed) || speed < 0 || speed >= len(acc.speed[cluster]) {
		return 0
	}
	return acc.speed[cluster][speed]
}

// Reset drops accumulated time. The last sample stays as the baseline.
func (r *CPUTimeReader) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uids = make(map[int32]*uidCPU)
}

type procStat struct {
	ticks procTicks
	cpu   int
}

// readProcStat parses /proc/[pid]/stat for utime, stime, and processor.
func readProcStat(pid int) (procStat, error) {
	data, err := os.ReadFile(filepath.Join(procRoot, strconv.Itoa(pid), "stat"))
	if err != nil {
		return procStat{}, err
	}

	// comm is in parens and may contain spaces/parens, so find last ')'
	end := bytes.LastIndexByte(data, ')')
	if bytes.IndexByte(data, '(') < 0 || end < 0 || end >= len(data)-1 {
		return procStat{}, fmt.Errorf("malformed stat for pid %d", pid)
	}

	// Fields after ')' start at state: utime is index 11, stime 12,
	// processor 36.
	fields := strings.Fields(string(data[end+2:]))
	if len(fields) < 37 {
		return procStat{}, fmt.Errorf("too few fields for pid %d", pid)
	}

	utime, _ := strconv.ParseInt(fields[11], 10, 64)
	stime, _ := strconv.ParseInt(fields[12], 10, 64)
	cpu, _ := strconv.Atoi(fields[36])

	return procStat{
		ticks: procTicks{utime: utime, stime: stime},
		cpu:   cpu,
	}, nil
}

// readProcUID returns the real UID from /proc/[pid]/status.
func readProcUID(pid int) (int, error) {
	f, err := os.Open(filepath.Join(procRoot, strconv.Itoa(pid), "status"))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		rest, ok := strings.CutPrefix(scanner.Text(), "Uid:")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			break
		}
		return strconv.Atoi(fields[0])
	}
	return 0, fmt.Errorf("no Uid line for pid %d", pid)
}
