package querier

import (
	"net"

	"github.com/beacon-mdns/beacon/internal/records"
)

// ChangeKind mirrors the cache's change notification: whether a record was
// newly seen, refreshed, expired, or withdrawn via a goodbye packet.
type ChangeKind = records.ChangeKind

const (
	Added   = records.Added
	Updated = records.Updated
	Removed = records.Removed
	Expired = records.Expired
)

// ServiceInfo is the resolved view of a DNS-SD service instance: the
// qualified PTR target plus whatever SRV/TXT/A data has arrived so far.
// Fields are zero-valued until the corresponding record is cached, so a
// ServiceInfo handed to a listener may be partially populated.
type ServiceInfo struct {
	InstanceName string
	ServiceType  string
	Domain       string
	Host         string
	Port         uint16
	IPv4         net.IP
	IPv6         net.IP
	TXT          map[string]string
}

// buildServiceInfo assembles a ServiceInfo for qualifiedName from whatever
// SRV/TXT/A/AAAA records the cache currently holds for it.
func buildServiceInfo(cache *records.Cache, qualifiedName string) *ServiceInfo {
	info := parseQualifiedName(qualifiedName)

	for _, r := range cache.GetAll(qualifiedName) {
		switch {
		case r.Service != nil:
			info.Port = r.Service.Port
			info.Host = r.Service.Target
		case r.Text != nil:
			info.TXT = make(map[string]string)
			for _, p := range r.Text.Pairs() {
				info.TXT[p.Key] = p.Value
			}
		}
	}

	if info.Host != "" {
		for _, r := range cache.GetAll(info.Host) {
			if r.Address == nil {
				continue
			}
			if v4 := r.Address.IP.To4(); v4 != nil {
				info.IPv4 = v4
			} else {
				info.IPv6 = r.Address.IP
			}
		}
	}

	return info
}

// parseQualifiedName splits "<instance>.<type>.<domain>." into its parts;
// it tolerates dots inside the instance name by splitting from the type
// suffix (the two "_"-prefixed labels) rather than from the left.
func parseQualifiedName(qualifiedName string) *ServiceInfo {
	name := qualifiedName
	for len(name) > 0 && name[len(name)-1] == '.' {
		name = name[:len(name)-1]
	}
	labels := splitLabels(name)
	if len(labels) < 3 {
		return &ServiceInfo{InstanceName: name}
	}
	domain := labels[len(labels)-1]
	transport := labels[len(labels)-2]
	serviceLabel := labels[len(labels)-3]
	instance := joinLabels(labels[:len(labels)-3])
	return &ServiceInfo{
		InstanceName: instance,
		ServiceType:  serviceLabel + "." + transport,
		Domain:       domain,
	}
}

func splitLabels(name string) []string {
	var labels []string
	start := 0
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			labels = append(labels, name[start:i])
			start = i + 1
		}
	}
	labels = append(labels, name[start:])
	return labels
}

func joinLabels(labels []string) string {
	out := ""
	for i, l := range labels {
		if i > 0 {
			out += "."
		}
		out += l
	}
	return out
}
