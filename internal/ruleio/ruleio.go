// Package ruleio loads ClassBench and MSU rule files, packet files, and
// result files, and writes result files back out. It is the only internal
// package that touches the filesystem or returns a parse error; the core
// (rule/tree/builder/partition/classifier) never does.
package ruleio

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/drjdaly/bytecuts/internal/rule"
)

// ReadRuleFile loads a rule file, detecting its format from the first
// byte: '!' selects MSU, '@' selects ClassBench. Any other leading byte
// is a fatal format error.
func ReadRuleFile(path string) ([]rule.Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening rule file %s", path)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	lead, err := br.Peek(1)
	if err != nil {
		if err == io.EOF {
			return nil, errors.Errorf("%s: rule file is empty", path)
		}
		return nil, errors.Wrapf(err, "reading rule file %s", path)
	}

	switch lead[0] {
	case '!':
		return readMSU(br, path)
	case '@':
		return readClassBench(br, path)
	default:
		return nil, errors.Errorf("%s: unrecognized rule format (expected a MSU '!' header or a ClassBench '@' rule)", path)
	}
}

// readClassBench parses one @-prefixed rule per line:
// @sip/len dip/len sp_low : sp_high dp_low : dp_high proto/mask
func readClassBench(r io.Reader, path string) ([]rule.Rule, error) {
	scanner := bufio.NewScanner(r)
	var rules []rule.Rule

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		tokens := strings.Fields(line)
		if len(tokens) != 9 {
			return nil, errors.Errorf("%s:%d: ClassBench rule must have 9 fields, got %d", path, lineNo, len(tokens))
		}
		if !strings.HasPrefix(tokens[0], "@") {
			return nil, errors.Errorf("%s:%d: ClassBench rule must begin with '@'", path, lineNo)
		}

		var rl rule.Rule
		var err error

		rl.Range[rule.SA], rl.PrefixLength[rule.SA], err = parseIPPrefix(strings.TrimPrefix(tokens[0], "@"))
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d: source address", path, lineNo)
		}
		rl.Range[rule.DA], rl.PrefixLength[rule.DA], err = parseIPPrefix(tokens[1])
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d: destination address", path, lineNo)
		}
		rl.Range[rule.SP], rl.PrefixLength[rule.SP], err = parsePortRange(tokens[2], tokens[4])
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d: source port", path, lineNo)
		}
		rl.Range[rule.DP], rl.PrefixLength[rule.DP], err = parsePortRange(tokens[5], tokens[7])
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d: destination port", path, lineNo)
		}
		rl.Range[rule.Proto], rl.PrefixLength[rule.Proto], err = parseProtocol(tokens[8])
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d: protocol", path, lineNo)
		}

		rules = append(rules, rl)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	// Reassign priority in a second pass: first line is highest priority,
	// i.e. priority = (N-1) - lineIndex. This discards whatever ordinal
	// each rule was parsed with, mirroring ReadFilterFileClassBench.
	n := len(rules)
	for i := range rules {
		rules[i].Priority = n - 1 - i
	}
	return rules, nil
}

func parseIPPrefix(tok string) (rule.Interval, uint8, error) {
	slash := strings.SplitN(tok, "/", 2)
	if len(slash) != 2 {
		return rule.Interval{}, 0, errors.Errorf("malformed address %q, want ip/len", tok)
	}
	octets := strings.Split(slash[0], ".")
	if len(octets) != 4 {
		return rule.Interval{}, 0, errors.Errorf("malformed dotted-quad %q", slash[0])
	}
	var ip uint32
	for _, o := range octets {
		v, err := strconv.ParseUint(o, 10, 8)
		if err != nil {
			return rule.Interval{}, 0, errors.Wrapf(err, "octet %q", o)
		}
		ip = ip<<8 | uint32(v)
	}
	length, err := strconv.ParseUint(slash[1], 10, 8)
	if err != nil || length > 32 {
		return rule.Interval{}, 0, errors.Errorf("malformed prefix length %q", slash[1])
	}

	mask := uint32(0xFFFFFFFF) << (32 - length)
	low := ip & mask
	high := low | ^mask
	return rule.Interval{Low: rule.Point(low), High: rule.Point(high)}, uint8(length), nil
}

func parsePortRange(loTok, hiTok string) (rule.Interval, uint8, error) {
	lo, err := strconv.ParseUint(loTok, 10, 16)
	if err != nil {
		return rule.Interval{}, 0, errors.Wrapf(err, "port low %q", loTok)
	}
	hi, err := strconv.ParseUint(hiTok, 10, 16)
	if err != nil {
		return rule.Interval{}, 0, errors.Wrapf(err, "port high %q", hiTok)
	}
	iv := rule.Interval{Low: rule.Point(lo), High: rule.Point(hi)}
	return iv, rule.PortPrefixLength(iv), nil
}

func parseProtocol(tok string) (rule.Interval, uint8, error) {
	slash := strings.SplitN(tok, "/", 2)
	if len(slash) != 2 {
		return rule.Interval{}, 0, errors.Errorf("malformed protocol %q, want 0xHH/0xFF", tok)
	}
	mask, err := strconv.ParseUint(slash[1], 0, 16)
	if err != nil {
		return rule.Interval{}, 0, errors.Wrapf(err, "protocol mask %q", slash[1])
	}
	if mask != 0xFF {
		return rule.Interval{Low: 0, High: 255}, rule.ProtoPrefixLength(false), nil
	}
	val, err := strconv.ParseUint(slash[0], 0, 16)
	if err != nil {
		return rule.Interval{}, 0, errors.Wrapf(err, "protocol value %q", slash[0])
	}
	return rule.Interval{Low: rule.Point(val), High: rule.Point(val)}, rule.ProtoPrefixLength(true), nil
}

// readMSU parses the MSU format: a '!'-prefixed metadata line, a
// comma-separated global-bounds line, then one comma-separated
// low:high-per-field rule per line (with a trailing ignored tag).
func readMSU(r io.Reader, path string) ([]rule.Rule, error) {
	scanner := bufio.NewScanner(r)

	if !scanner.Scan() {
		return nil, errors.Errorf("%s: missing MSU metadata line", path)
	}
	if !scanner.Scan() {
		return nil, errors.Errorf("%s: missing MSU bounds line", path)
	}
	boundTokens := strings.Split(scanner.Text(), ",")
	bounds := make([]rule.Interval, len(boundTokens))
	for i, tok := range boundTokens {
		iv, err := parseLowHigh(tok)
		if err != nil {
			return nil, errors.Wrapf(err, "%s:2: bounds field %d", path, i)
		}
		bounds[i] = iv
	}

	var rules []rule.Rule
	lineNo := 2
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < int(rule.NumDims)+1 {
			return nil, errors.Errorf("%s:%d: MSU rule needs %d fields plus a tag, got %d", path, lineNo, rule.NumDims, len(fields))
		}

		var rl rule.Rule
		for d := rule.Dim(0); d < rule.NumDims; d++ {
			iv, err := parseLowHigh(fields[d])
			if err != nil {
				return nil, errors.Wrapf(err, "%s:%d: field %s", path, lineNo, d)
			}
			rl.Range[d] = iv
			if isPrefix(iv.Low, iv.High) {
				rl.PrefixLength[d] = prefixLengthOf(iv.Low, iv.High)
			}
		}
		rl.Priority = len(rules)
		rules = append(rules, rl)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	// Invert to [1,N]: first data line ends up with priority N, not
	// N-1, kept intentionally rather than normalized to ClassBench's
	// [0,N-1].
	n := len(rules)
	for i := range rules {
		rules[i].Priority = n - rules[i].Priority
	}
	return rules, nil
}

func parseLowHigh(tok string) (rule.Interval, error) {
	parts := strings.SplitN(strings.TrimSpace(tok), ":", 2)
	if len(parts) != 2 {
		return rule.Interval{}, errors.Errorf("malformed low:high %q", tok)
	}
	lo, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return rule.Interval{}, errors.Wrapf(err, "low %q", parts[0])
	}
	hi, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return rule.Interval{}, errors.Wrapf(err, "high %q", parts[1])
	}
	return rule.Interval{Low: rule.Point(lo), High: rule.Point(hi)}, nil
}

// isPrefix and prefixLengthOf report whether a field carries a
// meaningful prefix length: only when its bounds form a
// power-of-2-aligned contiguous range.
func isPrefix(low, high rule.Point) bool {
	diff := uint32(high) - uint32(low)
	return (uint32(low)&uint32(high)) == uint32(low) && isPower2(diff+1)
}

func isPower2(x uint32) bool {
	return (x-1)&x == 0
}

func prefixLengthOf(low, high rule.Point) uint8 {
	diff := uint32(high) - uint32(low)
	lg := 0
	for x := diff; x != 0; x >>= 1 {
		lg++
	}
	return uint8(32 - lg)
}

// ReadPackets loads a packet file: one packet per line, five
// whitespace-separated decimal Points (SA, DA, SP, DP, Proto).
func ReadPackets(path string) ([]rule.Packet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening packet file %s", path)
	}
	defer f.Close()

	var packets []rule.Packet
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		tokens := strings.Fields(line)
		if len(tokens) != int(rule.NumDims) {
			return nil, errors.Errorf("%s:%d: packet needs %d fields, got %d", path, lineNo, rule.NumDims, len(tokens))
		}
		var p rule.Packet
		for d := rule.Dim(0); d < rule.NumDims; d++ {
			v, err := strconv.ParseUint(tokens[d], 10, 32)
			if err != nil {
				return nil, errors.Wrapf(err, "%s:%d: field %s", path, lineNo, d)
			}
			p[d] = rule.Point(v)
		}
		packets = append(packets, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return packets, nil
}

// ReadResults loads a result file: one integer (priority or -1) per
// entry, whitespace-delimited rather than strictly line-delimited.
func ReadResults(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening result file %s", path)
	}
	defer f.Close()

	var results []int
	scanner := bufio.NewScanner(f)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		v, err := strconv.Atoi(scanner.Text())
		if err != nil {
			return nil, errors.Wrapf(err, "parsing result in %s", path)
		}
		results = append(results, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return results, nil
}

// WriteResults writes one priority per line, in classification order.
func WriteResults(path string, results []int) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating result file %s", path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, r := range results {
		if _, err := w.WriteString(strconv.Itoa(r) + "\n"); err != nil {
			return errors.Wrapf(err, "writing %s", path)
		}
	}
	return errors.Wrapf(w.Flush(), "flushing %s", path)
}
