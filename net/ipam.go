//go:build linux

package net

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/apparentlymart/go-cidr/cidr"
	bolt "go.etcd.io/bbolt"
)

const (
	ipamDefaultDBPath = "/var/run/judgebox/ipam.db"

	// staleLeaseAge bounds how long a lease is honored without a matching
	// Release. Every judgebox run is wall-time-limited (see sandbox.Limits),
	// so a lease still held an hour after it was recorded can only belong to
	// a supervisor that crashed or was killed before it reached its own
	// Cleanup — a well-behaved run is long gone by then. Without this, a
	// grading fleet that runs bridge-mode sandboxes continuously would
	// eventually exhaust the /24 pool to leases nobody will ever release.
	staleLeaseAge = time.Hour
)

/**
 * IpamOptions configures the IP allocator.
 */
type IpamOptions struct {
	SubnetCIDR string
	DBPath     string
	Reserved   []net.IP

	// Instance, when set, is recorded as the lease holder instead of a
	// bare reservation marker, so a leaked lease found in the BoltDB file
	// after a crashed run can be traced back to the judgebox instance
	// that allocated it.
	Instance string
}

/**
 * IpamAllocator represents a single allocated IP within a subnet.
 */
type IpamAllocator struct {
	// BoltDB file path.
	dbPath string

	// Bucket name for this subnet.
	bucket []byte

	// Networking subnet.
	subnet *net.IPNet

	// Prefix length.
	prefix int

	// Allocated IP address.
	ip net.IP

	// List of reserved IPs that should not be allocated.
	reserved map[string]struct{}
}

/**
 * AllocateIP returns a new allocator for the next free IP inside the given
 * subnet. The IP is reserved until Release() is called.
 * @param opts configuration
 * @return *IpamAllocator or error.
 */
func AllocateIP(opts IpamOptions) (*IpamAllocator, error) {
	if opts.SubnetCIDR == "" {
		return nil, fmt.Errorf("SubnetCIDR must be provided")
	}

	// Choose DB path.
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = ipamDefaultDBPath
	}

	// Parse subnet.
	_, ipNet, err := net.ParseCIDR(opts.SubnetCIDR)
	if err != nil {
		return nil, fmt.Errorf("invalid subnet CIDR: %w", err)
	}
	if ipNet.IP.To4() == nil {
		return nil, fmt.Errorf("only IPv4 subnets supported")
	}
	prefixLen, _ := ipNet.Mask.Size()

	// Address range and reserved set (network, broadcast, plus user-specified).
	first, last := cidr.AddressRange(ipNet)
	reserved := map[string]struct{}{
		first.String(): {}, // network
		last.String():  {}, // broadcast
	}
	for _, r := range opts.Reserved {
		if r4 := r.To4(); r4 != nil {
			reserved[r4.String()] = struct{}{}
		}
	}

	// Open DB (short-lived), reserve first free address atomically, then close.
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("ipam: mkdir: %w", err)
	}

	var picked net.IP
	if err := withDB(dbPath, func(db *bolt.DB) error {
		bucket := []byte(opts.SubnetCIDR)

		return db.Update(func(tx *bolt.Tx) error {
			bkt, err := tx.CreateBucketIfNotExists(bucket)
			if err != nil {
				return err
			}

			// Reclaim leases old enough that their holder can't still be
			// a live run (see staleLeaseAge) before looking for a free
			// address, so a long-lived fleet doesn't slowly exhaust the
			// pool to crashed runs that never called Release.
			if err := sweepStaleLeases(bkt); err != nil {
				return err
			}

			for cur := cidr.Inc(first); bytes.Compare(cur, last) < 0; cur = cidr.Inc(cur) {
				s := cur.String()
				if _, skip := reserved[s]; skip {
					// IP address is reserved.
					continue
				}
				if v := bkt.Get([]byte(s)); v != nil {
					// IP address is already allocated.
					continue
				}
				// Allocate this IP, tagging it with the requesting
				// instance and the allocation time so a stale lease can
				// be attributed and eventually reclaimed.
				if err := bkt.Put([]byte(s), encodeLease(opts.Instance)); err != nil {
					return fmt.Errorf("reserve %s: %w", s, err)
				}
				picked = append(net.IP(nil), cur...) // copy
				return nil
			}
			return fmt.Errorf("no free IPs in %s", opts.SubnetCIDR)
		})
	}); err != nil {
		return nil, fmt.Errorf("ipam: open DB: %w", err)
	}

	return &IpamAllocator{
		dbPath:   dbPath,
		bucket:   []byte(opts.SubnetCIDR),
		subnet:   ipNet,
		prefix:   prefixLen,
		ip:       picked,
		reserved: reserved,
	}, nil
}

/**
 * @return the allocated IP in CIDR notation.
 */
func (ia *IpamAllocator) IP() string {
	return fmt.Sprintf("%s/%d", ia.ip.String(), ia.prefix)
}

/**
 * Release frees the allocated IP.
 * After release, the IpamAllocator should not be used.
 * It is safe to call Release multiple times.
 */
func (ia *IpamAllocator) Release() error {
	return withDB(ia.dbPath, func(db *bolt.DB) error {
		return db.Update(func(tx *bolt.Tx) error {
			bkt := tx.Bucket(ia.bucket)
			if bkt == nil {
				return nil
			}
			return bkt.Delete([]byte(ia.ip.String()))
		})
	})
}

// encodeLease packs the holding instance name and the current time into a
// bucket value of the form "<instance>|<unix-seconds>". The timestamp is
// what lets sweepStaleLeases tell a lease held by a run still in progress
// from one abandoned by a run that never released it.
func encodeLease(instance string) []byte {
	if instance == "" {
		instance = "unknown"
	}
	return []byte(fmt.Sprintf("%s|%d", instance, time.Now().Unix()))
}

// decodeLease reverses encodeLease. ok is false for a lease written before
// this encoding existed, or any other value that doesn't parse — callers
// should treat those conservatively (not stale) rather than reclaim them.
func decodeLease(v []byte) (instance string, allocatedAt time.Time, ok bool) {
	parts := strings.SplitN(string(v), "|", 2)
	if len(parts) != 2 {
		return string(v), time.Time{}, false
	}
	sec, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return parts[0], time.Time{}, false
	}
	return parts[0], time.Unix(sec, 0), true
}

// sweepStaleLeases deletes every lease in bkt older than staleLeaseAge. It
// must be called from inside the same read-write transaction that will
// subsequently look for a free address, so a reclaimed lease is immediately
// available to the allocation that triggered the sweep.
func sweepStaleLeases(bkt *bolt.Bucket) error {
	var stale [][]byte
	if err := bkt.ForEach(func(k, v []byte) error {
		if _, allocatedAt, ok := decodeLease(v); ok && time.Since(allocatedAt) > staleLeaseAge {
			stale = append(stale, append([]byte(nil), k...))
		}
		return nil
	}); err != nil {
		return err
	}
	for _, k := range stale {
		if err := bkt.Delete(k); err != nil {
			return fmt.Errorf("sweep stale lease %s: %w", k, err)
		}
	}
	return nil
}

/**
 * Helper to open BoltDB with a short timeout, run f, and close it.
 * This avoids holding an exclusive RW lock for the lifetime of the sandbox.
 */
func withDB(path string, f func(*bolt.DB) error) error {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()
	return f(db)
}
