// Package cache provides a set-associative cache in front of an emu.Memory
// using Akita cache components.
package cache

import (
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/S-YOU/nsemu/emu"
)

// Config holds cache configuration parameters.
type Config struct {
	// Size in bytes
	Size int `json:"size"`
	// Associativity (number of ways)
	Associativity int `json:"associativity"`
	// BlockSize in bytes (cache line size)
	BlockSize int `json:"block_size"`
}

// DefaultL1IConfig returns the L1 instruction cache geometry of an Apple M2
// performance core: 192KB, 6-way, 64B lines.
func DefaultL1IConfig() Config {
	return Config{
		Size:          192 * 1024, // 192KB
		Associativity: 6,          // 6-way
		BlockSize:     64,         // 64B cache line
	}
}

// DefaultL1DConfig returns the L1 data cache geometry of an Apple M2
// performance core: 128KB, 8-way, 64B lines.
func DefaultL1DConfig() Config {
	return Config{
		Size:          128 * 1024, // 128KB
		Associativity: 8,          // 8-way
		BlockSize:     64,         // 64B cache line
	}
}

// Validate checks that the geometry describes at least one whole set.
func (c Config) Validate() error {
	if c.Associativity <= 0 {
		return fmt.Errorf("associativity must be positive, got %d", c.Associativity)
	}
	if c.BlockSize < 8 || c.BlockSize&(c.BlockSize-1) != 0 {
		return fmt.Errorf("block size must be a power of two of at least 8 bytes, got %d", c.BlockSize)
	}
	setBytes := c.Associativity * c.BlockSize
	if c.Size < setBytes || c.Size%setBytes != 0 {
		return fmt.Errorf("size %d is not a multiple of associativity*block size (%d)", c.Size, setBytes)
	}
	return nil
}

// NumSets returns the number of sets the geometry yields.
func (c Config) NumSets() int {
	return c.Size / (c.Associativity * c.BlockSize)
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Reads     uint64 `json:"reads"`
	Writes    uint64 `json:"writes"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	// Bypasses counts reads served by the backing memory directly because
	// they straddle a block or the block could not be filled.
	Bypasses uint64 `json:"bypasses"`
}

// HitRate returns Hits over Hits+Misses, or 0 before any cached read.
func (s Statistics) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is a read-allocate, write-through cache. It implements emu.Memory,
// so the engine can use it in place of the memory it wraps. Permissions and
// faults are always decided by the backing memory.
type Cache struct {
	// Configuration
	config Config

	// Akita cache directory for tag/state management
	directory *akitacache.DirectoryImpl

	// Data storage - indexed by (setID * associativity + wayID)
	dataStore [][]byte

	// Statistics
	stats Statistics

	backing emu.Memory
}

var _ emu.Memory = (*Cache)(nil)

// New creates a new cache with the given configuration. The configuration
// must be valid.
func New(config Config, backing emu.Memory) *Cache {
	numSets := config.NumSets()
	totalBlocks := numSets * config.Associativity

	// Initialize data storage
	dataStore := make([][]byte, totalBlocks)
	for i := range dataStore {
		dataStore[i] = make([]byte, config.BlockSize)
	}

	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		dataStore: dataStore,
		backing:   backing,
	}
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// Stats returns cache statistics.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// ResetStats clears cache statistics.
func (c *Cache) ResetStats() {
	c.stats = Statistics{}
}

// ReadWord32 fetches an instruction word.
func (c *Cache) ReadWord32(addr uint64) (uint32, error) {
	v, err := c.read(addr, 4, emu.AccessExec)
	return uint32(v), err
}

// Read loads size bytes.
func (c *Cache) Read(addr uint64, size int) (uint64, error) {
	return c.read(addr, size, emu.AccessRead)
}

// Write stores through to the backing memory and then updates any cached
// copy of the written bytes. A rejected store leaves the cache unchanged.
func (c *Cache) Write(addr uint64, size int, value uint64) error {
	c.stats.Writes++

	if err := c.backing.Write(addr, size, value); err != nil {
		return err
	}

	for i := 0; i < size; i++ {
		a := addr + uint64(i)
		block := c.lookup(a)
		if block == nil {
			continue
		}
		c.dataStore[c.blockIndex(block)][a%uint64(c.config.BlockSize)] = byte(value >> (8 * i))
	}
	return nil
}

// Check asks the backing memory.
func (c *Cache) Check(addr uint64, size int, access emu.Access) error {
	return c.backing.Check(addr, size, access)
}

// Invalidate marks the cache line holding addr as invalid.
func (c *Cache) Invalidate(addr uint64) {
	if block := c.lookup(addr); block != nil {
		block.IsValid = false
	}
}

// Reset invalidates all cache lines and clears statistics.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.stats = Statistics{}
}

func (c *Cache) read(addr uint64, size int, access emu.Access) (uint64, error) {
	c.stats.Reads++

	if err := c.backing.Check(addr, size, access); err != nil {
		return 0, err
	}

	offset := addr % uint64(c.config.BlockSize)
	if int(offset)+size > c.config.BlockSize {
		c.stats.Bypasses++
		return c.uncached(addr, size, access)
	}

	// Cache hit
	if block := c.lookup(addr); block != nil {
		c.stats.Hits++
		c.directory.Visit(block) // Update LRU
		return extractData(c.dataStore[c.blockIndex(block)], offset, size), nil
	}

	// Cache miss
	c.stats.Misses++
	blockData, ok := c.allocate(c.blockAddr(addr))
	if !ok {
		c.stats.Bypasses++
		return c.uncached(addr, size, access)
	}
	return extractData(blockData, offset, size), nil
}

// allocate fills a victim block with the block at blockAddr. It returns
// false if the backing memory cannot supply the whole block.
func (c *Cache) allocate(blockAddr uint64) ([]byte, bool) {
	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		return nil, false
	}

	if victim.IsValid {
		c.stats.Evictions++
	}

	victimData := c.dataStore[c.blockIndex(victim)]
	if err := c.fill(blockAddr, victimData); err != nil {
		victim.IsValid = false
		return nil, false
	}

	// Tag stores the block-aligned address
	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = false
	c.directory.Visit(victim)

	return victimData, true
}

func (c *Cache) lookup(addr uint64) *akitacache.Block {
	block := c.directory.Lookup(0, c.blockAddr(addr)) // PID=0, single address space
	if block == nil || !block.IsValid {
		return nil
	}
	return block
}

func (c *Cache) blockAddr(addr uint64) uint64 {
	return addr &^ uint64(c.config.BlockSize-1)
}

// blockIndex computes the index into dataStore for a block.
func (c *Cache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

// extractData extracts a little-endian value of the given size.
func extractData(data []byte, offset uint64, size int) uint64 {
	var result uint64
	for i := 0; i < size; i++ {
		result |= uint64(data[int(offset)+i]) << (i * 8)
	}
	return result
}
