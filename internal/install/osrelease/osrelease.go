// Package osrelease detects the host Linux distribution from /etc/os-release.
package osrelease

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Family groups distributions by the package manager they carry.
type Family string

const (
	FamilyDebian  Family = "debian"
	FamilyRHEL    Family = "rhel"
	FamilySUSE    Family = "suse"
	FamilyArch    Family = "arch"
	FamilyUnknown Family = "unknown"
)

// Info holds the fields of /etc/os-release the installer cares about.
type Info struct {
	ID         string
	IDLike     []string
	VersionID  string
	PrettyName string
}

// DefaultPath is where os-release lives on any systemd-era distribution.
const DefaultPath = "/etc/os-release"

// Detect reads and parses the os-release file at path.
func Detect(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot detect distribution: %w", err)
	}
	defer f.Close()

	info := &Info{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		switch strings.TrimSpace(key) {
		case "ID":
			info.ID = strings.ToLower(val)
		case "ID_LIKE":
			for _, like := range strings.Fields(strings.ToLower(val)) {
				info.IDLike = append(info.IDLike, like)
			}
		case "VERSION_ID":
			info.VersionID = val
		case "PRETTY_NAME":
			info.PrettyName = val
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if info.ID == "" {
		return nil, fmt.Errorf("%s has no ID field", path)
	}
	return info, nil
}

// Family classifies the distribution, consulting ID first and ID_LIKE as
// fallback so derivatives (Linux Mint, Rocky, Manjaro...) land in the right
// bucket.
func (i *Info) Family() Family {
	candidates := append([]string{i.ID}, i.IDLike...)
	for _, id := range candidates {
		switch id {
		case "debian", "ubuntu", "raspbian", "linuxmint", "pop":
			return FamilyDebian
		case "rhel", "centos", "fedora", "rocky", "almalinux", "amzn", "ol":
			return FamilyRHEL
		case "sles", "opensuse", "opensuse-leap", "opensuse-tumbleweed", "suse":
			return FamilySUSE
		case "arch", "archlinux", "manjaro", "endeavouros":
			return FamilyArch
		}
	}
	return FamilyUnknown
}

func (i *Info) String() string {
	if i.PrettyName != "" {
		return i.PrettyName
	}
	if i.VersionID != "" {
		return i.ID + " " + i.VersionID
	}
	return i.ID
}
