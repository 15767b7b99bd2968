package cache

import (
	"github.com/S-YOU/nsemu/emu"
)

// fill copies one block from the backing memory, eight bytes at a time.
func (c *Cache) fill(blockAddr uint64, data []byte) error {
	for off := 0; off < len(data); off += 8 {
		v, err := c.backing.Read(blockAddr+uint64(off), 8)
		if err != nil {
			return err
		}
		for i := 0; i < 8; i++ {
			data[off+i] = byte(v >> (8 * i))
		}
	}
	return nil
}

// uncached serves an access from the backing memory directly. Fetches go
// through ReadWord32 so execute-only pages stay fetchable.
func (c *Cache) uncached(addr uint64, size int, access emu.Access) (uint64, error) {
	if access == emu.AccessExec && size == 4 {
		v, err := c.backing.ReadWord32(addr)
		return uint64(v), err
	}
	return c.backing.Read(addr, size)
}
