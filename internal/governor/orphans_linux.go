//go:build linux

package governor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// helperTypes are the Chromium child process types that outlive a crashed
// or killed browser process.
var helperTypes = []string{"--type=renderer", "--type=gpu-process", "--type=utility"}

func (g *Governor) killOrphans(ctx context.Context) int {
	pids := findOrphans(g.procRoot, os.Getuid())
	killed := 0
	for _, pid := range pids {
		if ctx.Err() != nil {
			break
		}
		if err := unix.Kill(pid, unix.SIGKILL); err != nil {
			log.Debug().Err(err).Int("pid", pid).Msg("Failed to kill orphaned browser helper")
			continue
		}
		killed++
	}
	if killed > 0 {
		log.Warn().Int("count", killed).Msg("Killed orphaned browser helper processes")
	}
	return killed
}

// findOrphans lists Chromium helper processes owned by uid whose parent is
// init or no longer exists.
func findOrphans(procRoot string, uid int) []int {
	entries, err := os.ReadDir(procRoot)
	if err != nil {
		log.Debug().Err(err).Str("proc", procRoot).Msg("Cannot scan processes")
		return nil
	}
	self := os.Getpid()

	var pids []int
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid == self {
			continue
		}
		dir := filepath.Join(procRoot, e.Name())

		var st unix.Stat_t
		if err := unix.Stat(dir, &st); err != nil || int(st.Uid) != uid {
			continue
		}
		cmdline, err := os.ReadFile(filepath.Join(dir, "cmdline"))
		if err != nil || !isBrowserHelper(cmdline) {
			continue
		}
		stat, err := os.ReadFile(filepath.Join(dir, "stat"))
		if err != nil {
			continue
		}
		ppid, ok := parentPID(string(stat))
		if !ok {
			continue
		}
		if ppid == 1 || !exists(filepath.Join(procRoot, strconv.Itoa(ppid))) {
			pids = append(pids, pid)
		}
	}
	return pids
}

// isBrowserHelper reports whether a NUL separated command line belongs to
// a Chromium helper process.
func isBrowserHelper(cmdline []byte) bool {
	args := bytes.Split(bytes.TrimRight(cmdline, "\x00"), []byte{0})
	if len(args) == 0 {
		return false
	}
	bin := strings.ToLower(filepath.Base(string(args[0])))
	if !strings.Contains(bin, "chrom") {
		return false
	}
	for _, a := range args[1:] {
		for _, t := range helperTypes {
			if string(a) == t {
				return true
			}
		}
	}
	return false
}

// parentPID reads the ppid field of /proc/<pid>/stat. The command name in
// parentheses may itself contain spaces or parentheses.
func parentPID(stat string) (int, bool) {
	i := strings.LastIndexByte(stat, ')')
	if i < 0 {
		return 0, false
	}
	fields := strings.Fields(stat[i+1:])
	if len(fields) < 2 {
		return 0, false
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return ppid, true
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
