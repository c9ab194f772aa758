package descriptor

// VolumeDescriptorSet holds exactly one of each ECMA-167 volume
// descriptor plus the terminator. Both the Main and Reserve VDS hold
// them in Ordered's order: PVD, PD, USD, IUVD, LVD, terminator, so the
// LVD comes fifth on disc, not second as in the field order below.
type VolumeDescriptorSet struct {
	Primary           PrimaryVolumeDescriptor
	Logical           LogicalVolumeDescriptor
	Partition         PartitionDescriptor
	Unallocated       UnallocatedSpaceDescriptor
	ImplementationUse ImplementationUseVolumeDescriptor
	Terminator        VolumeDescriptorSetTerminator
}

// Ordered returns the sequence-number order the VDS is written in.
func (s VolumeDescriptorSet) Ordered() []uint16 {
	return []uint16{
		s.Primary.Tag.Identifier,
		s.Partition.Tag.Identifier,
		s.Unallocated.Tag.Identifier,
		s.ImplementationUse.Tag.Identifier,
		s.Logical.Tag.Identifier,
		s.Terminator.Tag.Identifier,
	}
}
