package rules

import "github.com/dgnsrekt/media_sniffer/internal/types"

// DefaultRules returns the built-in rule table. Within a category the first
// matching rule wins, so more specific patterns come first.
func DefaultRules() []Rule {
	var out []Rule
	out = append(out, extensionRules...)
	out = append(out, contentTypeRules...)
	out = append(out, streamingPageRules...)
	out = append(out, ignoreRules...)
	out = append(out, strictRules...)
	out = append(out, temporaryRules...)
	out = append(out, platformHostRules...)
	out = append(out, strictTokenRules...)
	return out
}

var extensionRules = []Rule{
	{Pattern: `\.(?:m3u8|mpd)(?:$|[/;])`, Category: CategoryExtension, Type: types.MediaStream},
	{Pattern: `\.(?:mp4|webm|mkv|mov|avi|flv|m4v|3gp|ogv)(?:$|[/;.])`, Category: CategoryExtension, Type: types.MediaVideo},
	{Pattern: `\.(?:mp3|m4a|aac|ogg|oga|opus|wav|flac)(?:$|[/;.])`, Category: CategoryExtension, Type: types.MediaAudio},
}

var contentTypeRules = []Rule{
	{Pattern: `^(?:application/(?:vnd\.apple\.mpegurl|x-mpegurl|dash\+xml)|audio/(?:x-)?mpegurl)`, Category: CategoryContentType, Type: types.MediaStream},
	{Pattern: `^video/`, Category: CategoryContentType, Type: types.MediaVideo},
	{Pattern: `^audio/`, Category: CategoryContentType, Type: types.MediaAudio},
}

var streamingPageRules = []Rule{
	{Pattern: `^https?://(?:www\.|m\.|music\.)?youtube\.com/(?:watch\?(?:.*&)?v=|shorts/|embed/|live/)`, Category: CategoryStreamingPage, Platform: types.PlatformYouTube},
	{Pattern: `^https?://youtu\.be/[^/?#]+`, Category: CategoryStreamingPage, Platform: types.PlatformYouTube},
	{Pattern: `^https?://(?:www\.|player\.)?vimeo\.com/(?:video/)?\d+`, Category: CategoryStreamingPage, Platform: types.PlatformVimeo},
	{Pattern: `^https?://(?:www\.)?dailymotion\.com/video/`, Category: CategoryStreamingPage, Platform: types.PlatformDailymotion},
	{Pattern: `^https?://(?:www\.|m\.)?twitch\.tv/(?:videos/\d+|[^/?#]+/clip/)`, Category: CategoryStreamingPage, Platform: types.PlatformTwitch},
	{Pattern: `^https?://(?:www\.|m\.|web\.)?facebook\.com/(?:watch/?\?(?:.*&)?v=|[^?#]+/videos/|reel/)`, Category: CategoryStreamingPage, Platform: types.PlatformFacebook},
	{Pattern: `^https?://fb\.watch/`, Category: CategoryStreamingPage, Platform: types.PlatformFacebook},
	{Pattern: `^https?://(?:www\.)?instagram\.com/(?:reels?|p|tv)/`, Category: CategoryStreamingPage, Platform: types.PlatformInstagram},
	{Pattern: `^https?://(?:www\.|mobile\.)?(?:twitter|x)\.com/[^/?#]+/status/\d+`, Category: CategoryStreamingPage, Platform: types.PlatformTwitter},
	{Pattern: `^https?://(?:www\.|m\.)?tiktok\.com/@[^/?#]+/video/\d+`, Category: CategoryStreamingPage, Platform: types.PlatformTikTok},
}

var ignoreRules = []Rule{
	// static assets
	{Pattern: `\.(?:jpe?g|png|gif|webp|avif|svg|ico|bmp|css|js|mjs|json|woff2?|ttf|otf|eot|map)(?:$|[?#])`, Category: CategoryIgnore},
	// adaptive-stream segments; the manifest is what gets downloaded
	{Pattern: `\.(?:ts|m4s)(?:$|[?#])`, Category: CategoryIgnore},
	// thumbnails, avatars, previews
	{Pattern: `(?:^|[/_.=-])(?:thumb(?:nail)?s?|avatars?|posters?|sprites?|storyboards?|previews?)(?:[/_.=?&-]|$)`, Category: CategoryIgnore},
	{Pattern: `//(?:i\d?\.ytimg\.com|yt\d\.ggpht\.com)/`, Category: CategoryIgnore, Platform: types.PlatformYouTube},
	{Pattern: `//pbs\.twimg\.com/(?:media|profile_images|ext_tw_video_thumb)/`, Category: CategoryIgnore, Platform: types.PlatformTwitter},
	// trackers and analytics
	{Pattern: `//[^/]*(?:google-analytics\.com|googletagmanager\.com|doubleclick\.net|googlesyndication\.com|googleadservices\.com|scorecardresearch\.com|adnxs\.com|criteo\.com)/`, Category: CategoryIgnore},
	{Pattern: `/(?:pixel|beacon|tracking|analytics|collect|log_event|logging_client_events|generate_204|ptracking|qoe)(?:[/?.]|$)`, Category: CategoryIgnore},
	{Pattern: `/api/stats/`, Category: CategoryIgnore, Platform: types.PlatformYouTube},
	{Pattern: `//[^/]*facebook\.com/(?:tr|ajax/bz|ajax/qm)(?:[/?]|$)`, Category: CategoryIgnore, Platform: types.PlatformFacebook},
	// non-video assets on video CDNs
	{Pattern: `//static\.[^/]*fbcdn\.net/`, Category: CategoryIgnore, Platform: types.PlatformFacebook},
	{Pattern: `/(?:rsrc|safe_image|emoji)\.php`, Category: CategoryIgnore, Platform: types.PlatformFacebook},
	{Pattern: `/v/t(?:1|15|39|51)\.\d+-\d+/`, Category: CategoryIgnore, Platform: types.PlatformFacebook},
}

var strictRules = []Rule{
	{Pattern: `\.m3u8(?:$|[?#])`, Category: CategoryStrict, Platform: types.PlatformFacebook},
	{Pattern: `^https?://video[^/]*\.fbcdn\.net/`, Category: CategoryStrict, Platform: types.PlatformFacebook},
	{Pattern: `/v/t(?:42|66)\.\d+-\d+/`, Category: CategoryStrict, Platform: types.PlatformFacebook},
}

var temporaryRules = []Rule{
	{Pattern: `^blob:`, Category: CategoryTemporary},
	{Pattern: `\.(?:m3u8|mpd)(?:$|[?#])`, Category: CategoryTemporary},
	{Pattern: `manifest\.`, Category: CategoryTemporary},
	{Pattern: `videoplayback\?`, Category: CategoryTemporary, Platform: types.PlatformYouTube},
	{Pattern: `/(?:hls|dash)/`, Category: CategoryTemporary},
	{Pattern: `fbcdn\.net`, Category: CategoryTemporary, Platform: types.PlatformFacebook},
	{Pattern: `cdninstagram\.com`, Category: CategoryTemporary, Platform: types.PlatformInstagram},
	{Pattern: `video\.twimg\.com`, Category: CategoryTemporary, Platform: types.PlatformTwitter},
	{Pattern: `(?:muscdn|tiktokcdn(?:-us)?)\.com`, Category: CategoryTemporary, Platform: types.PlatformTikTok},
}

// Instagram's CDN lives under fbcdn.net too, so it is listed before Facebook.
var platformHostRules = []Rule{
	{Pattern: `(?:^|\.)(?:youtube\.com|youtu\.be|youtube-nocookie\.com|googlevideo\.com)$`, Category: CategoryPlatformHost, Platform: types.PlatformYouTube},
	{Pattern: `(?:^|\.)(?:instagram\.com|cdninstagram\.com)$`, Category: CategoryPlatformHost, Platform: types.PlatformInstagram},
	{Pattern: `^(?:scontent-[^.]+\.cdninstagram\.com|instagram\.[^.]+\.fbcdn\.net)$`, Category: CategoryPlatformHost, Platform: types.PlatformInstagram},
	{Pattern: `(?:^|\.)(?:facebook\.com|fb\.watch|fbcdn\.net)$`, Category: CategoryPlatformHost, Platform: types.PlatformFacebook},
	{Pattern: `(?:^|\.)(?:twitter\.com|x\.com|twimg\.com)$`, Category: CategoryPlatformHost, Platform: types.PlatformTwitter},
	{Pattern: `(?:^|\.)(?:tiktok\.com|tiktokv\.com|tiktokcdn\.com|tiktokcdn-us\.com|muscdn\.com)$`, Category: CategoryPlatformHost, Platform: types.PlatformTikTok},
	{Pattern: `(?:^|\.)(?:vimeo\.com|vimeocdn\.com)$`, Category: CategoryPlatformHost, Platform: types.PlatformVimeo},
	{Pattern: `(?:^|\.)(?:dailymotion\.com|dmcdn\.net)$`, Category: CategoryPlatformHost, Platform: types.PlatformDailymotion},
	{Pattern: `(?:^|\.)(?:twitch\.tv|ttvnw\.net)$`, Category: CategoryPlatformHost, Platform: types.PlatformTwitch},
}

var strictTokenRules = []Rule{
	{Pattern: `(?:^|[^0-9])\d{2,4}x\d{2,4}(?:[^0-9]|$)`, Category: CategoryDimension},
	{Pattern: `(?:^|[^0-9])(?:144|240|360|480|540|720|1080|1440|2160)p(?:[^a-z0-9]|$)`, Category: CategoryQuality},
	{Pattern: `(?:^|[^a-z])(?:hd|sd|uhd)(?:[^a-z]|$)`, Category: CategoryQuality},
	{Pattern: `(?:quality|bitrate|vencode_tag)=`, Category: CategoryQuality},
	{Pattern: `(?:^|[^a-z])dash(?:[^a-z]|$)`, Category: CategoryQuality},
	{Pattern: `\.m3u8(?:$|[?#])`, Category: CategoryManifest},
	{Pattern: `\.mpd(?:$|[?#])`, Category: CategoryManifest},
}
