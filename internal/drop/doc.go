// Package drop implements the data unit ("drop") of a pipeline: one
// physical copy of a data product, with a production status machine and
// a durability phase.
//
// # Status
//
// A drop is created Initialized, moves to Writing on its first write and to
// Completed when the producer finishes. Completed drops are moved forward to
// Expired and Deleted by the lifecycle manager. Error is a terminal failure
// state reached from the write path. Status never moves backwards.
//
//	Initialized -> Writing -> Completed -> Expired -> Deleted
//	     \            \
//	      +------------+----> Error
//
// # Phase
//
// Phase classifies durability independently of status: Gas (single,
// unverified copy), Solid (replicated to the required number of copies) and
// Lost (the content could not be found when verified). Only a Completed drop
// becomes Solid, and only a failed existence check makes it Lost.
//
// # Usage
//
//	d, err := drop.New(backend, drop.Options{OID: "oid:A", UID: "uid:A1", ExpectedSize: 1})
//	if err != nil {
//	    return err
//	}
//	d.Subscribe(func(d *drop.Drop) { log.Println("completed", d.UID()) })
//
//	// Reaching the expected size completes the drop.
//	if _, err := d.Write(ctx, []byte{' '}); err != nil {
//	    return err
//	}
//
//	// Elsewhere: block until the drop has finished.
//	if err := d.Wait(ctx, 5*time.Second); errors.Is(err, drop.ErrTimeout) {
//	    ...
//	}
package drop
