package lifecycle

// pageObserverScript installs the in-page hooks that report link hover,
// media state changes, background color, and history API navigation over
// the surface's message channel. Re-injected after every finished
// navigation since page loads wipe prior script state.
const pageObserverScript = `(() => {
  if (window.__tabcoreObserved) { return true; }
  window.__tabcoreObserved = true;
  const emit = (kind, payload) => {
    try {
      if (window.__tabcoreEmit) { window.__tabcoreEmit(JSON.stringify({ kind, payload })); }
    } catch (e) {}
  };
  document.addEventListener('mouseover', (e) => {
    const a = e.target && e.target.closest ? e.target.closest('a[href]') : null;
    if (a) { emit('link_hover', { href: a.href }); }
  }, { passive: true });
  for (const ev of ['play', 'pause', 'ended', 'volumechange', 'enterpictureinpicture', 'leavepictureinpicture']) {
    document.addEventListener(ev, (e) => {
      if (e.target instanceof HTMLMediaElement) { emit('media_state', { event: ev }); }
    }, { capture: true, passive: true });
  }
  const pushState = history.pushState;
  history.pushState = function (...args) {
    const r = pushState.apply(this, args);
    emit('history_state', { url: location.href });
    return r;
  };
  window.addEventListener('popstate', () => emit('history_state', { url: location.href }));
  const color = getComputedStyle(document.body || document.documentElement).backgroundColor;
  emit('background_color', { color });
  return true;
})()`

// muteScript returns the script applying the tab-level mute preference to
// every media element in the page.
func muteScript(muted bool) string {
	if muted {
		return `document.querySelectorAll('audio,video').forEach(m => { m.muted = true; }); true`
	}
	return `document.querySelectorAll('audio,video').forEach(m => { m.muted = false; }); true`
}
