// Package localvcs provides a reversible, locally persisted file tree.
//
// A [Repository] holds a tree of files and directories. Every mutation is a
// [change.Change] that is applied to the tree and appended to a history, so
// mutations can be undone one at a time, most recent first. Entries are
// identified by stable ids; a change keeps acting on the same entry even if
// an ancestor was renamed or moved in between.
//
// # Quick Start
//
// Open a repository and make some changes:
//
//	repo, err := localvcs.Open("./state", localvcs.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer repo.Close()
//
//	if _, err := repo.CreateDirectory("docs", now); err != nil {
//	    return err
//	}
//	if _, err := repo.CreateFile("docs/readme.md", content.FromString("# hi"), now); err != nil {
//	    return err
//	}
//	if err := repo.Rename("docs", "documentation"); err != nil {
//	    return err
//	}
//
// Undo the rename:
//
//	c, err := repo.Revert()
//
// # Persistence
//
// A repository directory holds a CBOR manifest, a change log and an object
// store:
//
//	manifest.cbor          current checkpoint, case mode, id counter
//	changes-000003.log     changes since the checkpoint, CRC framed
//	objects/               file bodies and checkpoints by digest
//
// [Repository.Flush] appends pending changes to the log and syncs it.
// [Repository.Checkpoint] writes the whole tree as a FlatBuffers snapshot
// and starts an empty log; history before a checkpoint cannot be reverted.
// A torn record at the end of the log, left by a crash during Flush, is
// dropped when the repository is opened.
//
// # Case Sensitivity
//
// Name comparison is fixed per repository by [WithCaseMode] and recorded in
// the manifest. Case-insensitive repositories preserve the case names were
// created with.
//
// # Subpackages
//
// The building blocks are usable on their own: [tree] is the entry arena,
// [change] holds the reversible operations and their codec, [changelog]
// the history and its log file, [snapshot] the checkpoint format, and
// [store] the content-addressed payload stores.
package localvcs
