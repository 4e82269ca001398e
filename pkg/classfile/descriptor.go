package classfile

import (
	"fmt"
	"strings"
)

// ParseMethodDescriptor splits a method descriptor such as "(I[JLjava/lang/String;)V"
// into its parameter field descriptors and return descriptor.
func ParseMethodDescriptor(desc string) ([]string, string, error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, "", fmt.Errorf("invalid method descriptor %q", desc)
	}
	var params []string
	i := 1
	for i < len(desc) && desc[i] != ')' {
		n, err := fieldDescriptorLen(desc[i:])
		if err != nil {
			return nil, "", fmt.Errorf("invalid method descriptor %q: %w", desc, err)
		}
		params = append(params, desc[i:i+n])
		i += n
	}
	if i >= len(desc) {
		return nil, "", fmt.Errorf("invalid method descriptor %q: missing ')'", desc)
	}
	ret := desc[i+1:]
	if ret != "V" {
		if n, err := fieldDescriptorLen(ret); err != nil || n != len(ret) {
			return nil, "", fmt.Errorf("invalid return type in %q", desc)
		}
	}
	return params, ret, nil
}

func fieldDescriptorLen(s string) (int, error) {
	i := 0
	for i < len(s) && s[i] == '[' {
		i++
	}
	if i >= len(s) {
		return 0, fmt.Errorf("truncated field descriptor %q", s)
	}
	switch s[i] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return i + 1, nil
	case 'L':
		end := strings.IndexByte(s[i:], ';')
		if end < 0 {
			return 0, fmt.Errorf("unterminated class type in %q", s)
		}
		return i + end + 1, nil
	}
	return 0, fmt.Errorf("bad field descriptor %q", s)
}

// SlotSize returns the number of local or stack slots taken by a field
// descriptor (2 for long and double, 0 for void).
func SlotSize(desc string) int {
	switch desc {
	case "J", "D":
		return 2
	case "V", "":
		return 0
	}
	return 1
}

// ArgumentSlots returns the number of slots the parameters of a method
// descriptor occupy, without the receiver.
func ArgumentSlots(desc string) (int, error) {
	params, _, err := ParseMethodDescriptor(desc)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range params {
		n += SlotSize(p)
	}
	return n, nil
}
