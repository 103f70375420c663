// ABOUTME: ADM metadata model and timeline package
// ABOUTME: Blocks, items, coordinate processing and revision-gated caching
// Package adm holds the metadata model shared by the handler and the renderers.
//
// A RawBlock is one timestamped metadata sample for one renderable item. Blocks are
// wrapped in a Block, which caches the processed form (coordinate normalization plus
// user offsets) against the revision of the Config it was computed from. An Item owns
// the ordered blocks of one ADM object, direct-speaker or HOA pack and resolves its
// effective state at a playhead time.
//
// Example:
//
//	settings := adm.NewSettings(adm.DefaultConfig())
//	item := adm.NewItem(first, 48000)
//	item.Append(first)
//	update := item.Resolve(1.25, settings.Snapshot())
package adm
